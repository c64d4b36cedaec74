package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"expensetracker/internal/auth"
	"expensetracker/internal/core"
	"expensetracker/internal/ports"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps a service error to an HTTP status and a message safe to show.
//
//	validation        -> 422
//	not signed in     -> 401
//	store unreachable -> 503
//	other store error -> 502
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "Please sign in first", ""
	case core.IsValidation(err):
		var ve *core.ValidationError
		errors.As(err, &ve)
		return http.StatusUnprocessableEntity, validationMessage(ve.Reason), string(ve.Reason)
	case errors.Is(err, core.ErrInvalidDate):
		return http.StatusUnprocessableEntity, "Date must be YYYY-MM-DD", "invalid date"
	}
	if kind, ok := ports.PersistenceKindOf(err); ok {
		if kind == ports.Unreachable {
			return http.StatusServiceUnavailable, "Storage is unreachable, please try again", string(kind)
		}
		return http.StatusBadGateway, "The transaction could not be saved", string(kind)
	}
	return http.StatusInternalServerError, "Something went wrong", ""
}

func validationMessage(r core.ValidationReason) string {
	switch r {
	case core.EmptyDescription:
		return "Description is required"
	case core.NonPositiveAmount:
		return "Amount must be a positive number"
	case core.InvalidKind:
		return "Type must be income or expense"
	}
	return "Invalid transaction"
}

// isHTMX reports whether the request came from htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// transactionJSON is the API shape of one ledger entry.
type transactionJSON struct {
	core.Record
	Formatted string `json:"formatted"`
}

type totalsJSON struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Balance  float64 `json:"balance"`
	Negative bool    `json:"negative"`
	Currency string  `json:"currency"`
}

type ledgerJSON struct {
	Filter       string            `json:"filter"`
	Transactions []transactionJSON `json:"transactions"`
	Totals       totalsJSON        `json:"totals"`
	Stale        bool              `json:"stale,omitempty"`
	Warning      string            `json:"warning,omitempty"`
}

func newTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{Record: core.RecordOf(t), Formatted: formatSigned(t)}
}

func newTotalsJSON(t core.Totals) totalsJSON {
	return totalsJSON{
		Income:   t.Income.Dollars(),
		Expenses: t.Expenses.Dollars(),
		Balance:  t.Balance.Dollars(),
		Negative: t.Negative(),
		Currency: core.CurrencyCode,
	}
}

func newLedgerJSON(mode core.ViewMode, l core.Ledger) ledgerJSON {
	out := ledgerJSON{
		Filter:       mode.String(),
		Transactions: make([]transactionJSON, 0, l.Len()),
		Totals:       newTotalsJSON(core.ComputeTotals(l)),
	}
	for t := range core.Filter(l, mode) {
		out.Transactions = append(out.Transactions, newTransactionJSON(t))
	}
	return out
}

// formatSigned renders +$1.00 for income and -$1.00 for expenses.
func formatSigned(t core.Transaction) string {
	if t.Kind == core.Income {
		return "+" + t.Amount.Format()
	}
	return "-" + t.Amount.Format()
}

// templateFuncs are available to every page template.
var templateFuncs = template.FuncMap{
	"money":  func(m core.Money) string { return m.Format() },
	"signed": formatSigned,
	"displayDate": func(d core.Date) string {
		if d.IsZero() {
			return ""
		}
		return d.Format("Jan 02, 2006")
	},
	"isIncome": func(t core.Transaction) bool { return t.Kind == core.Income },
}
