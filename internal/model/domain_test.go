package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTransaction() Transaction {
	return Transaction{
		Amount:     decimal.RequireFromString("12.50"),
		Category:   "Food",
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Kind:       Outflow,
		OwnerID:    GuestID,
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTransaction().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	zero := validTransaction()
	zero.Amount = decimal.Zero
	if err := zero.Validate(); err != nil {
		t.Fatalf("zero amount should be allowed, got %v", err)
	}

	cases := map[string]func(*Transaction){
		"negative amount": func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-1) },
		"empty category":  func(tx *Transaction) { tx.Category = "  " },
		"bad kind":        func(tx *Transaction) { tx.Kind = "transfer" },
		"empty owner":     func(tx *Transaction) { tx.OwnerID = "" },
		"zero time":       func(tx *Transaction) { tx.OccurredAt = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tx := validTransaction()
			mutate(&tx)
			err := tx.Validate()
			if !errors.Is(err, ErrConstraintViolation) {
				t.Fatalf("expected constraint violation, got %v", err)
			}
		})
	}
}

func TestCategoryValidate(t *testing.T) {
	cases := []struct {
		name string
		c    Category
		ok   bool
	}{
		{"default", Category{Name: "Food", IsDefault: true}, true},
		{"custom", Category{Name: "Pets", OwnerID: "u1", ColorHex: "#aabbcc"}, true},
		{"default with owner", Category{Name: "Food", IsDefault: true, OwnerID: "u1"}, false},
		{"custom without owner", Category{Name: "Pets"}, false},
		{"bad color", Category{Name: "Pets", OwnerID: "u1", ColorHex: "red"}, false},
		{"empty name", Category{OwnerID: "u1"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrConstraintViolation) {
				t.Fatalf("expected constraint violation, got %v", err)
			}
		})
	}
}

func TestProfileValidate(t *testing.T) {
	good := Profile{OwnerID: "u1", CurrencyCode: "USD", MonthlyBudget: decimal.NewFromInt(100)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	guest := Profile{OwnerID: GuestID, IsGuest: true, CurrencyCode: DefaultCurrency}
	if err := guest.Validate(); err != nil {
		t.Fatalf("expected guest profile ok, got %v", err)
	}

	bads := []Profile{
		{OwnerID: "u1", CurrencyCode: "USD", IsGuest: true},
		{OwnerID: GuestID, CurrencyCode: "USD"},
		{OwnerID: "u1", CurrencyCode: "XXXX"},
		{OwnerID: "u1", CurrencyCode: "USD", MonthlyBudget: decimal.NewFromInt(-5)},
	}
	for i, p := range bads {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestInitialSyncState(t *testing.T) {
	if got := InitialSyncState(GuestID); got != LocalOnly {
		t.Fatalf("guest: got %s", got)
	}
	if got := InitialSyncState("u1"); got != Pending {
		t.Fatalf("user: got %s", got)
	}
}

func TestNormalizeTime(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	in := time.Date(2025, 1, 2, 3, 4, 5, 123456789, loc)
	got := NormalizeTime(in)
	if got.Location() != time.UTC || got.Nanosecond() != 123000000 {
		t.Fatalf("unexpected normalized time %v", got)
	}
	if !NormalizeTime(time.Time{}).IsZero() {
		t.Fatal("zero time should stay zero")
	}
}
