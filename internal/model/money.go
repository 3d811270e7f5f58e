// Package model holds the ledger entities, their invariants and the error
// taxonomy shared by the store, the remote adapters and the coordinator.
//
// This file contains amount parsing and currency helpers.
package model

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used for profiles created without an explicit currency.
const DefaultCurrency = "BDT"

// Budget thresholds as fractions of the monthly budget.
var (
	BudgetWarningThreshold  = decimal.RequireFromString("0.8")
	BudgetExceededThreshold = decimal.RequireFromString("1.0")
)

var ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrConstraintViolation)

// ParseAmount converts a user supplied decimal string into an amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up to two fractional digits. Signs are rejected; zero is allowed.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("-1")     -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return NormalizeAmount(d), nil
}

// NormalizeAmount rounds half-up to the two fractional digits the store persists.
func NormalizeAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ValidateCurrency checks that code is a known ISO 4217 currency.
func ValidateCurrency(code string) error {
	if money.GetCurrency(strings.ToUpper(code)) == nil {
		return fmt.Errorf("%w: unknown currency %q", ErrConstraintViolation, code)
	}
	return nil
}

// FormatAmount renders amount with the currency symbol, e.g. "$12.34".
func FormatAmount(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(code)
	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

// FormatSigned prefixes the formatted amount with "-" for outflows and "+" for inflows.
func FormatSigned(amount decimal.Decimal, code string, kind Kind) string {
	sign := "+"
	if kind == Outflow {
		sign = "-"
	}
	return sign + FormatAmount(amount.Abs(), code)
}
