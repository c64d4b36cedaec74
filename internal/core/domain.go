package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	CategoryFood          Category = "food"
	CategoryTransport     Category = "transport"
	CategoryHousing       Category = "housing"
	CategoryEntertainment Category = "entertainment"
	CategoryShopping      Category = "shopping"
	CategoryUtilities     Category = "utilities"
	CategoryOther         Category = "other"
)

// DateLayout is the ISO calendar date format used on every boundary.
const DateLayout = "2006-01-02"

type (
	// Kind carries the sign of a transaction.
	Kind string

	// Category is one of the fixed spending/earning buckets.
	Category string

	// Date is a calendar date without time of day, stored at UTC midnight.
	Date struct {
		time.Time
	}

	// Transaction is a confirmed ledger entry. ID and OwnerID are assigned by
	// the storage collaborator; nothing mutates a Transaction once stored.
	Transaction struct {
		ID          string
		OwnerID     string
		Description string
		Amount      Money
		Kind        Kind
		Category    Category
		Date        Date
	}

	// Draft is the user supplied input of the "add transaction" action.
	Draft struct {
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Kind        string          `json:"transactionType"`
		Category    string          `json:"category"`
		Date        Date            `json:"date"`
	}
)

var categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryHousing,
	CategoryEntertainment,
	CategoryShopping,
	CategoryUtilities,
	CategoryOther,
}

var ErrInvalidDate = errors.New("invalid date")

// Categories returns the closed category set in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseKind returns the Kind named by s or ErrInvalidKind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Income, Expense:
		return k, nil
	}
	return "", ErrInvalidKind
}

func (k Kind) String() string { return string(k) }

// ParseCategory maps s onto the closed set. Anything unrecognised becomes
// CategoryOther instead of failing.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range categories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

func (c Category) String() string { return string(c) }

// Label is the capitalised name shown in the UI.
func (c Category) Label() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current date in the local calendar.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewTransaction validates a draft dated by the local clock.
func NewTransaction(d Draft) (Transaction, error) {
	return NewTransactionAt(d, time.Now())
}

// NewTransactionAt validates d and builds an unsaved Transaction. A zero draft
// date becomes the calendar date of now.
func NewTransactionAt(d Draft, now time.Time) (Transaction, error) {
	desc := strings.TrimSpace(d.Description)
	if desc == "" {
		return Transaction{}, ErrEmptyDescription
	}
	amount, err := AmountFromDecimal(d.Amount)
	if err != nil {
		return Transaction{}, err
	}
	kind, err := ParseKind(d.Kind)
	if err != nil {
		return Transaction{}, err
	}
	date := d.Date
	if date.IsZero() {
		date = DateOf(now)
	}
	return Transaction{
		Description: desc,
		Amount:      amount,
		Kind:        kind,
		Category:    ParseCategory(d.Category),
		Date:        date,
	}, nil
}

// WithIdentity returns a copy of t bound to the id and owner assigned by storage.
func (t Transaction) WithIdentity(id, ownerID string) Transaction {
	t.ID = id
	t.OwnerID = ownerID
	return t
}

// Signed returns the amount with the sign implied by the kind.
func (t Transaction) Signed() Money {
	if t.Kind == Expense {
		return Money{Cents: -t.Amount.Cents}
	}
	return t.Amount
}

// Validate re-checks the creation rules on an already built transaction.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Kind != Income && t.Kind != Expense {
		return ErrInvalidKind
	}
	return nil
}
