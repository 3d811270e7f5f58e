package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"ledger/internal/model"
)

func TestFailureClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"transient failure", NewTransient("create", "users/u1/expenses/a", errors.New("offline")), true},
		{"wrapped transient", fmt.Errorf("push: %w", NewTransient("create", "p", nil)), true},
		{"permanent failure", NewPermanent("create", "p", errors.New("denied")), false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.transient {
				t.Errorf("IsTransient = %v, want %v", got, tt.transient)
			}
			if got := IsPermanent(tt.err); got == tt.transient {
				t.Errorf("IsPermanent = %v, want %v", got, !tt.transient)
			}
		})
	}

	if !errors.Is(NewPermanent("delete", "p", nil), ErrPermanent) {
		t.Errorf("permanent failure does not match ErrPermanent")
	}
	if errors.Is(NewPermanent("delete", "p", nil), ErrTransient) {
		t.Errorf("permanent failure matches ErrTransient")
	}
}

func TestPaths(t *testing.T) {
	if got := Expenses("u1").Doc("k1").Path(); got != "users/u1/expenses/k1" {
		t.Errorf("expense path = %q", got)
	}
	if got := ProfileRef("u1").Path(); got != "users/u1/profile/info" {
		t.Errorf("profile path = %q", got)
	}
}

func TestTransactionDocumentOmitsEmptyNotes(t *testing.T) {
	doc := TransactionDocument(model.Transaction{OwnerID: "u1", Kind: model.Inflow})
	if v, ok := doc["notes"]; !ok || v != nil {
		t.Errorf("notes = %v, want explicit nil", v)
	}
	if doc["type"] != "income" || doc["userId"] != "u1" {
		t.Errorf("unexpected document: %v", doc)
	}
}
