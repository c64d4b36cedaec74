package google

import "expensetracker/internal/core"

// Columns: Date, Description, Amount, Signed amount, Kind, Category, Owner, ID.
const lastColumn = "H"

// Header is the row expected at the top of the mirror sheet.
var Header = []any{"Date", "Description", "Amount", "Signed", "Kind", "Category", "Owner", "ID"}

// row renders t for USER_ENTERED input: amounts as plain decimal strings so
// Sheets parses them as numbers regardless of the sheet locale.
func row(t core.Transaction) []any {
	return []any{
		t.Date.String(),
		t.Description,
		t.Amount.Decimal().StringFixed(2),
		t.Signed().Decimal().StringFixed(2),
		t.Kind.String(),
		t.Category.Label(),
		t.OwnerID,
		t.ID,
	}
}
