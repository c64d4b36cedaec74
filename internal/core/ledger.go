package core

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

// Ledger is the ordered set of one owner's transactions, in arrival order.
// A Ledger value never changes; Append returns a new one.
type Ledger struct {
	owner string
	items []Transaction
}

// NewLedger returns an empty ledger for owner.
func NewLedger(owner string) Ledger {
	return Ledger{owner: owner}
}

// LedgerFromRecords builds the ledger for one snapshot push. Records that do
// not decode or that belong to another owner are left out and reported in the
// returned error; the ledger still holds every good record.
func LedgerFromRecords(owner string, records []Record) (Ledger, error) {
	l := Ledger{owner: owner, items: make([]Transaction, 0, len(records))}
	var errs []error
	for _, r := range records {
		t, err := r.Transaction()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if t.OwnerID != owner {
			errs = append(errs, fmt.Errorf("record %s: %w", r.ID, ErrOwnerMismatch))
			continue
		}
		l.items = append(l.items, t)
	}
	return l, errors.Join(errs...)
}

func (l Ledger) Owner() string { return l.owner }

func (l Ledger) Len() int { return len(l.items) }

// Append returns a ledger with t added at the end.
func (l Ledger) Append(t Transaction) (Ledger, error) {
	if t.OwnerID != l.owner {
		return l, ErrOwnerMismatch
	}
	// Clip forces a fresh backing array so earlier values stay untouched.
	return Ledger{owner: l.owner, items: append(slices.Clip(l.items), t)}, nil
}

// All iterates the transactions in order. The sequence can be ranged over
// any number of times.
func (l Ledger) All() iter.Seq[Transaction] {
	return slices.Values(l.items)
}
