package core

import (
	"fmt"
	"strings"
)

// Record is the raw transaction document exchanged with the storage
// collaborator. Amount is a plain JSON number in dollars.
type Record struct {
	ID              string  `json:"id"`
	Description     string  `json:"description"`
	Amount          float64 `json:"amount"`
	TransactionType string  `json:"transactionType"`
	Category        string  `json:"category"`
	Date            string  `json:"date"`
	OwnerID         string  `json:"ownerId"`
}

// RecordOf converts a stored transaction back into its wire form.
func RecordOf(t Transaction) Record {
	return Record{
		ID:              t.ID,
		Description:     t.Description,
		Amount:          t.Amount.Dollars(),
		TransactionType: string(t.Kind),
		Category:        string(t.Category),
		Date:            t.Date.String(),
		OwnerID:         t.OwnerID,
	}
}

// Transaction decodes r with the same rules used when a transaction is created.
// A missing or malformed date is an error here: storage always supplies one.
func (r Record) Transaction() (Transaction, error) {
	if strings.TrimSpace(r.ID) == "" {
		return Transaction{}, fmt.Errorf("record without id")
	}
	amount, err := AmountFromFloat(r.Amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	date, err := ParseDate(r.Date)
	if err != nil {
		return Transaction{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	kind, err := ParseKind(r.TransactionType)
	if err != nil {
		return Transaction{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	desc := strings.TrimSpace(r.Description)
	if desc == "" {
		return Transaction{}, fmt.Errorf("record %s: %w", r.ID, ErrEmptyDescription)
	}
	return Transaction{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Description: desc,
		Amount:      amount,
		Kind:        kind,
		Category:    ParseCategory(r.Category),
		Date:        date,
	}, nil
}
