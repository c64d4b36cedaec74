package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func draft(desc, amount, kind, category string) Draft {
	return Draft{
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Kind:        kind,
		Category:    category,
	}
}

func TestNewTransactionValidation(t *testing.T) {
	cases := []struct {
		name string
		d    Draft
		want error
	}{
		{"empty description", draft("", "10", "expense", "food"), ErrEmptyDescription},
		{"blank description", draft("   ", "10", "expense", "food"), ErrEmptyDescription},
		{"zero amount", draft("x", "0", "expense", "food"), ErrNonPositiveAmount},
		{"negative amount", draft("x", "-5", "expense", "food"), ErrNonPositiveAmount},
		{"bad kind", draft("x", "10", "transfer", "food"), ErrInvalidKind},
		{"empty kind", draft("x", "10", "", "food"), ErrInvalidKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTransaction(tc.d)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !IsValidation(err) {
				t.Fatalf("expected a ValidationError, got %T", err)
			}
		})
	}
}

func TestNewTransactionSuccess(t *testing.T) {
	now := time.Date(2025, 3, 9, 22, 30, 0, 0, time.Local)
	tx, err := NewTransactionAt(draft("  Lunch ", "12.50", "expense", "food"), now)
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if tx.Description != "Lunch" || tx.Amount.Cents != 1250 || tx.Kind != Expense || tx.Category != CategoryFood {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if tx.Date.String() != "2025-03-09" {
		t.Fatalf("expected date to default to today, got %s", tx.Date)
	}
	if tx.ID != "" || tx.OwnerID != "" {
		t.Fatalf("identity must be assigned by storage, got %q/%q", tx.ID, tx.OwnerID)
	}
}

func TestNewTransactionKeepsGivenDate(t *testing.T) {
	d := draft("Rent", "800", "expense", "housing")
	d.Date = NewDate(2024, 12, 1)
	tx, err := NewTransaction(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Date.String() != "2024-12-01" {
		t.Fatalf("date = %s", tx.Date)
	}
}

func TestUnknownCategoryCoercedToOther(t *testing.T) {
	tx, err := NewTransaction(draft("Stuff", "3", "expense", "groceries123"))
	if err != nil {
		t.Fatalf("unknown category must not be rejected: %v", err)
	}
	if tx.Category != CategoryOther {
		t.Fatalf("category = %s, want other", tx.Category)
	}
	if ParseCategory(" Transport ") != CategoryTransport {
		t.Fatalf("category parsing should be case and space insensitive")
	}
}

func TestDraftJSON(t *testing.T) {
	var d Draft
	body := `{"description":"Salary","amount":1000,"transactionType":"income","category":"other","date":"2025-01-31"}`
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tx, err := NewTransaction(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Amount.Cents != 100000 || tx.Kind != Income || tx.Date.String() != "2025-01-31" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	tx := Transaction{
		ID: "a", OwnerID: "u1", Description: "Bus", Amount: Money{Cents: 275},
		Kind: Expense, Category: CategoryTransport, Date: NewDate(2025, 2, 3),
	}
	back, err := RecordOf(tx).Transaction()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.ID != tx.ID || back.OwnerID != tx.OwnerID || back.Amount != tx.Amount ||
		back.Kind != tx.Kind || back.Category != tx.Category || !back.Date.Equal(tx.Date.Time) {
		t.Fatalf("round trip mismatch: %+v != %+v", back, tx)
	}

	bad := RecordOf(tx)
	bad.Date = "03/02/2025"
	if _, err := bad.Transaction(); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected invalid date, got %v", err)
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2025, 7, 4))
	if err != nil || string(b) != `"2025-07-04"` {
		t.Fatalf("marshal = %s (err=%v)", b, err)
	}
	var d Date
	if err := json.Unmarshal([]byte(`""`), &d); err != nil || !d.IsZero() {
		t.Fatalf("empty date should decode to zero, got %v (err=%v)", d, err)
	}
	if err := json.Unmarshal([]byte(`"bogus"`), &d); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestTransactionSigned(t *testing.T) {
	in := Transaction{Kind: Income, Amount: Money{Cents: 10}}
	out := Transaction{Kind: Expense, Amount: Money{Cents: 10}}
	if in.Signed().Cents != 10 || out.Signed().Cents != -10 {
		t.Fatalf("signed amounts wrong: %d %d", in.Signed().Cents, out.Signed().Cents)
	}
}
