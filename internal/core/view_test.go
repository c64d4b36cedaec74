package core

import (
	"slices"
	"testing"
)

func TestParseViewMode(t *testing.T) {
	cases := map[string]ViewMode{"": ViewAll, "all": ViewAll, "Income": ViewIncome, " expense ": ViewExpense}
	for in, want := range cases {
		got, err := ParseViewMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseViewMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseViewMode("transfers"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestViewKeepsRelativeOrder(t *testing.T) {
	l := ledgerOf(t,
		tx("a", 1, Income),
		tx("b", 1, Expense),
		tx("c", 1, Income),
		tx("d", 1, Expense),
		tx("e", 1, Expense),
	)
	cases := []struct {
		mode ViewMode
		want []string
	}{
		{ViewAll, []string{"a", "b", "c", "d", "e"}},
		{ViewIncome, []string{"a", "c"}},
		{ViewExpense, []string{"b", "d", "e"}},
	}
	for _, tc := range cases {
		if got := ids(View(l, tc.mode)); !slices.Equal(got, tc.want) {
			t.Errorf("View(%s) = %v, want %v", tc.mode, got, tc.want)
		}
	}
	if l.Len() != 5 {
		t.Fatalf("view mutated the ledger")
	}
}

func TestViewPartitionsLedger(t *testing.T) {
	l := ledgerOf(t, tx("a", 1, Income), tx("b", 2, Expense), tx("c", 3, Income))
	seen := map[string]int{}
	for _, tr := range View(l, ViewIncome) {
		seen[tr.ID]++
	}
	for _, tr := range View(l, ViewExpense) {
		seen[tr.ID]++
	}
	all := View(l, ViewAll)
	if len(seen) != len(all) {
		t.Fatalf("union has %d members, ledger %d", len(seen), len(all))
	}
	for _, tr := range all {
		if seen[tr.ID] != 1 {
			t.Fatalf("%s appears %d times across income/expense views", tr.ID, seen[tr.ID])
		}
	}
}

func TestViewExpenseAfterSingleIncome(t *testing.T) {
	in := tx("salary", 50000, Income)
	l, err := NewLedger("owner").Append(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := View(l, ViewExpense); len(got) != 0 {
		t.Fatalf("expected empty expense view, got %v", ids(got))
	}
}

func TestFilterStopsEarly(t *testing.T) {
	l := ledgerOf(t, tx("a", 1, Income), tx("b", 1, Income), tx("c", 1, Income))
	n := 0
	for range Filter(l, ViewIncome) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("iterated %d", n)
	}
}
