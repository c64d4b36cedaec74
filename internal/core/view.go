package core

import (
	"fmt"
	"iter"
	"strings"
)

// ViewMode selects which transactions a view shows.
type ViewMode string

const (
	ViewAll     ViewMode = "all"
	ViewIncome  ViewMode = "income"
	ViewExpense ViewMode = "expense"
)

// ParseViewMode accepts all, income or expense. An empty string means all.
func ParseViewMode(s string) (ViewMode, error) {
	switch m := ViewMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ViewAll, nil
	case ViewAll, ViewIncome, ViewExpense:
		return m, nil
	}
	return "", fmt.Errorf("unknown view mode %q", s)
}

func (m ViewMode) String() string { return string(m) }

// Matches reports whether t belongs in a view of mode m.
func (m ViewMode) Matches(t Transaction) bool {
	switch m {
	case ViewIncome:
		return t.Kind == Income
	case ViewExpense:
		return t.Kind == Expense
	default:
		return true
	}
}

// Filter is the lazy form of View.
func Filter(l Ledger, m ViewMode) iter.Seq[Transaction] {
	return func(yield func(Transaction) bool) {
		for t := range l.All() {
			if m.Matches(t) && !yield(t) {
				return
			}
		}
	}
}

// View returns the transactions of l selected by m, keeping their order.
func View(l Ledger, m ViewMode) []Transaction {
	out := make([]Transaction, 0, l.Len())
	for t := range Filter(l, m) {
		out = append(out, t)
	}
	return out
}
