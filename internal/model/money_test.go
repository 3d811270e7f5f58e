package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0", "0", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"+1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.RequireFromString("12.34"), "usd"); got != "$12.34" {
		t.Fatalf("got %q", got)
	}
	if got := FormatSigned(decimal.RequireFromString("5"), "USD", Outflow); got != "-$5.00" {
		t.Fatalf("got %q", got)
	}
	if got := FormatSigned(decimal.RequireFromString("5"), "USD", Inflow); got != "+$5.00" {
		t.Fatalf("got %q", got)
	}
}

func TestNewSummaryBudgetStatus(t *testing.T) {
	from, to := MonthRange(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), nil)
	cases := []struct {
		expense string
		budget  string
		want    BudgetStatus
	}{
		{"10", "0", BudgetUnset},
		{"10", "100", BudgetOK},
		{"80", "100", BudgetWarning},
		{"120", "100", BudgetExceeded},
	}
	for _, tc := range cases {
		s := NewSummary(from, to, decimal.NewFromInt(200), decimal.RequireFromString(tc.expense), decimal.RequireFromString(tc.budget))
		if s.BudgetStatus != tc.want {
			t.Fatalf("expense=%s budget=%s: got %s want %s", tc.expense, tc.budget, s.BudgetStatus, tc.want)
		}
		if !s.Balance.Equal(decimal.NewFromInt(200).Sub(decimal.RequireFromString(tc.expense))) {
			t.Fatalf("unexpected balance %s", s.Balance)
		}
	}
	if from.Day() != 1 || to.Month() != time.February || to.Day() != 28 {
		t.Fatalf("unexpected month range %v - %v", from, to)
	}
}
