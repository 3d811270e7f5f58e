package memory

import (
	"context"
	"errors"
	"testing"

	"ledger/internal/remote"
)

func TestStoreCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	col := remote.Expenses("u1")

	id, err := s.Create(ctx, col, "k1", remote.Document{"amount": 1.0})
	if err != nil || id != "k1" {
		t.Fatalf("Create = %q, %v", id, err)
	}
	if _, err := s.Create(ctx, col, "k1", remote.Document{"amount": 2.0}); err != nil {
		t.Fatalf("second Create: %v", err)
	}

	if ids := s.List(col); len(ids) != 1 {
		t.Fatalf("got %d documents, want 1", len(ids))
	}
	doc, ok := s.Get(col.Doc("k1"))
	if !ok || doc["amount"] != 2.0 {
		t.Fatalf("document = %v, %v", doc, ok)
	}

	generated, err := s.Create(ctx, col, "", remote.Document{})
	if err != nil || generated == "" {
		t.Fatalf("Create without id = %q, %v", generated, err)
	}
}

func TestStoreFaults(t *testing.T) {
	ctx := context.Background()
	s := New()
	ref := remote.ProfileRef("u1")

	s.FailNext(remote.Transient, 1)
	s.FailNext(remote.Permanent, 1)

	if err := s.Replace(ctx, ref, remote.Document{}); !errors.Is(err, remote.ErrTransient) {
		t.Fatalf("first call: err = %v, want transient", err)
	}
	if err := s.Replace(ctx, ref, remote.Document{}); !errors.Is(err, remote.ErrPermanent) {
		t.Fatalf("second call: err = %v, want permanent", err)
	}
	if err := s.Replace(ctx, ref, remote.Document{}); err != nil {
		t.Fatalf("third call: %v", err)
	}

	s.SetOffline(true)
	if err := s.Delete(ctx, ref); !remote.IsTransient(err) {
		t.Fatalf("offline delete: err = %v, want transient", err)
	}
	s.SetOffline(false)
	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("delete of a missing document: %v", err)
	}

	if got := s.CountCalls("replace"); got != 3 {
		t.Errorf("replace calls = %d, want 3", got)
	}
	if got := s.CountCalls(""); got != 6 {
		t.Errorf("all calls = %d, want 6", got)
	}
}

func TestStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()
	if _, err := s.Create(ctx, remote.Expenses("u1"), "k", remote.Document{}); !errors.Is(err, remote.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
	if len(s.List(remote.Expenses("u1"))) != 0 {
		t.Fatalf("document written despite cancelled context")
	}
}
