package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetStatus classifies spending against the monthly budget.
type BudgetStatus string

const (
	BudgetUnset    BudgetStatus = "unset"
	BudgetOK       BudgetStatus = "ok"
	BudgetWarning  BudgetStatus = "warning"
	BudgetExceeded BudgetStatus = "exceeded"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// Summary is the income/expense overview for a period.
type Summary struct {
	From, To     time.Time
	Income       decimal.Decimal
	Expense      decimal.Decimal
	Balance      decimal.Decimal
	Budget       decimal.Decimal
	BudgetUsage  decimal.Decimal // expense / budget, zero when no budget is set
	BudgetStatus BudgetStatus
	ByCategory   []CategoryAmount
}

// NewSummary derives balance and budget usage from the raw totals.
func NewSummary(from, to time.Time, income, expense, budget decimal.Decimal) Summary {
	s := Summary{
		From:    from,
		To:      to,
		Income:  income,
		Expense: expense,
		Balance: income.Sub(expense),
		Budget:  budget,
	}
	if !budget.IsPositive() {
		s.BudgetStatus = BudgetUnset
		return s
	}
	s.BudgetUsage = expense.DivRound(budget, 4)
	switch {
	case s.BudgetUsage.GreaterThanOrEqual(BudgetExceededThreshold):
		s.BudgetStatus = BudgetExceeded
	case s.BudgetUsage.GreaterThanOrEqual(BudgetWarningThreshold):
		s.BudgetStatus = BudgetWarning
	default:
		s.BudgetStatus = BudgetOK
	}
	return s
}

// MonthRange returns the inclusive range covering the calendar month of t in loc.
func MonthRange(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start, end
}
