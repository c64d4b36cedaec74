package core

// Totals is the summary shown on top of the tracker.
type Totals struct {
	Income   Money
	Expenses Money
	Balance  Money
}

// ComputeTotals folds the ledger into income, expense and balance sums.
// Accumulation happens on integer cents so the result does not depend on
// summation order.
func ComputeTotals(l Ledger) Totals {
	var t Totals
	for tx := range l.All() {
		switch tx.Kind {
		case Income:
			t.Income = t.Income.Add(tx.Amount)
		case Expense:
			t.Expenses = t.Expenses.Add(tx.Amount)
		}
	}
	t.Balance = t.Income.Sub(t.Expenses)
	return t
}

// Negative reports whether expenses exceed income.
func (t Totals) Negative() bool { return t.Balance.IsNegative() }
