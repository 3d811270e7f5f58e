package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func txn(owner, amount, category string, kind model.Kind, at time.Time) model.Transaction {
	return model.Transaction{
		Amount:     decimal.RequireFromString(amount),
		Category:   category,
		OccurredAt: at,
		Kind:       kind,
		OwnerID:    owner,
	}
}

var day = time.Date(2025, 3, 10, 12, 30, 45, 123456789, time.UTC)

func TestInsertQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	in := txn("u1", "12.34", "Food", model.Outflow, day)
	in.Notes = "lunch"
	saved, err := s.InsertTransaction(ctx, in)
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	if saved.ID == 0 || saved.SyncKey == "" || saved.Version != 1 {
		t.Fatalf("unexpected bookkeeping: %+v", saved)
	}

	got, err := s.GetTransaction(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if !got.Amount.Equal(in.Amount) {
		t.Errorf("amount = %s, want %s", got.Amount, in.Amount)
	}
	if !got.OccurredAt.Equal(day.Truncate(time.Millisecond)) {
		t.Errorf("occurred_at = %v, want %v", got.OccurredAt, day.Truncate(time.Millisecond))
	}
	if got.Category != "Food" || got.Notes != "lunch" || got.Kind != model.Outflow || got.OwnerID != "u1" {
		t.Errorf("fields mismatch: %+v", got)
	}
	if got.SyncState != model.Pending || got.RemoteID != "" {
		t.Errorf("sync = %s/%q, want pending with no remote id", got.SyncState, got.RemoteID)
	}
	if got.SyncKey != saved.SyncKey {
		t.Errorf("sync key changed: %q != %q", got.SyncKey, saved.SyncKey)
	}

	guest, err := s.InsertTransaction(ctx, txn(model.GuestID, "1", "Food", model.Outflow, day))
	if err != nil {
		t.Fatalf("InsertTransaction(guest): %v", err)
	}
	if guest.SyncState != model.LocalOnly {
		t.Errorf("guest sync state = %s, want local_only", guest.SyncState)
	}
}

func TestQueryTransactions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	early := day.Add(-48 * time.Hour)
	late := day.Add(48 * time.Hour)
	rows := []model.Transaction{
		txn("u1", "1", "Food", model.Outflow, early),
		txn("u1", "2", "Food", model.Outflow, day),
		txn("u1", "3", "Salary", model.Inflow, day),
		txn("u1", "4", "Transport", model.Outflow, late),
		txn("u2", "5", "Food", model.Outflow, day),
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		saved, err := s.InsertTransaction(ctx, r)
		if err != nil {
			t.Fatalf("InsertTransaction %d: %v", i, err)
		}
		ids[i] = saved.ID
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"all newest first, ties by id", Filter{OwnerID: "u1"}, []int64{ids[3], ids[2], ids[1], ids[0]}},
		{"kind", Filter{OwnerID: "u1", Kind: model.Outflow}, []int64{ids[3], ids[1], ids[0]}},
		{"category", Filter{OwnerID: "u1", Category: "Food"}, []int64{ids[1], ids[0]}},
		{"inclusive range", Filter{OwnerID: "u1", From: day, To: late}, []int64{ids[3], ids[2], ids[1]}},
		{"limit", Filter{OwnerID: "u1", Limit: 1}, []int64{ids[3]}},
		{"other owner", Filter{OwnerID: "u2"}, []int64{ids[4]}},
		{"empty", Filter{OwnerID: "nobody"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryTransactions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryTransactions: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d rows, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("row %d id = %d, want %d", i, got[i].ID, tt.want[i])
				}
			}
		})
	}

	if _, err := s.QueryTransactions(ctx, Filter{}); !errors.Is(err, model.ErrConstraintViolation) {
		t.Errorf("query without owner: err = %v, want constraint violation", err)
	}
}

func TestSequentialWritesLastWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	saved, err := s.InsertTransaction(ctx, txn("u1", "10", "Food", model.Outflow, day))
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	first := saved
	first.Amount = decimal.RequireFromString("20")
	if _, err := s.UpdateTransaction(ctx, first); err != nil {
		t.Fatalf("UpdateTransaction 1: %v", err)
	}
	second := saved
	second.Amount = decimal.RequireFromString("30")
	second.Notes = "final"
	if _, err := s.UpdateTransaction(ctx, second); err != nil {
		t.Fatalf("UpdateTransaction 2: %v", err)
	}

	got, err := s.GetTransaction(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if !got.Amount.Equal(decimal.RequireFromString("30")) || got.Notes != "final" {
		t.Errorf("got %s/%q, want 30/final", got.Amount, got.Notes)
	}
	if got.Version != 3 {
		t.Errorf("version = %d, want 3", got.Version)
	}
}

func TestConstraintViolationLeavesPreviousValue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.InsertTransaction(ctx, txn("u1", "-1", "Food", model.Outflow, day)); !errors.Is(err, model.ErrConstraintViolation) {
		t.Fatalf("negative insert: err = %v, want constraint violation", err)
	}
	if n, _ := s.CountTransactions(ctx, "u1"); n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}

	saved, err := s.InsertTransaction(ctx, txn("u1", "5", "Food", model.Outflow, day))
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	bad := saved
	bad.Category = "  "
	if _, err := s.UpdateTransaction(ctx, bad); !errors.Is(err, model.ErrConstraintViolation) {
		t.Fatalf("empty category update: err = %v, want constraint violation", err)
	}
	other := saved
	other.OwnerID = "u2"
	if _, err := s.UpdateTransaction(ctx, other); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("foreign update: err = %v, want not found", err)
	}

	got, _ := s.GetTransaction(ctx, saved.ID)
	if got.Category != "Food" || got.Version != 1 {
		t.Errorf("row changed after rejected writes: %+v", got)
	}
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	saved, err := s.InsertTransaction(ctx, txn("u1", "5", "Food", model.Outflow, day))
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	if _, err := s.DeleteTransaction(ctx, "u2", saved.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("delete by other owner: err = %v, want not found", err)
	}
	deleted, err := s.DeleteTransaction(ctx, "u1", saved.ID)
	if err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if deleted.SyncKey != saved.SyncKey {
		t.Errorf("deleted row mismatch: %+v", deleted)
	}
	if _, err := s.GetTransaction(ctx, saved.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("get after delete: err = %v, want not found", err)
	}
	if _, err := s.DeleteTransaction(ctx, "u1", saved.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("second delete: err = %v, want not found", err)
	}
}

func TestAggregates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sum, err := s.AggregateSum(ctx, "u1", model.Outflow, day, day.Add(time.Hour))
	if err != nil {
		t.Fatalf("AggregateSum: %v", err)
	}
	if !sum.IsZero() {
		t.Fatalf("empty range sum = %s, want 0", sum)
	}

	for _, r := range []model.Transaction{
		txn("u1", "10.10", "Food", model.Outflow, day),
		txn("u1", "0.20", "Food", model.Outflow, day),
		txn("u1", "15", "Transport", model.Outflow, day),
		txn("u1", "100", "Salary", model.Inflow, day),
		txn("u2", "99", "Food", model.Outflow, day),
	} {
		if _, err := s.InsertTransaction(ctx, r); err != nil {
			t.Fatalf("InsertTransaction: %v", err)
		}
	}

	sum, err = s.AggregateSum(ctx, "u1", model.Outflow, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("AggregateSum: %v", err)
	}
	if !sum.Equal(decimal.RequireFromString("25.30")) {
		t.Errorf("expense sum = %s, want 25.30", sum)
	}

	byCat, err := s.SumByCategory(ctx, "u1", model.Outflow, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("SumByCategory: %v", err)
	}
	if len(byCat) != 2 || byCat[0].Name != "Transport" || !byCat[1].Amount.Equal(decimal.RequireFromString("10.30")) {
		t.Errorf("by category = %+v", byCat)
	}
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cats, err := s.ListCategories(ctx, model.GuestID)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != len(model.DefaultCategories) {
		t.Fatalf("got %d categories, want %d defaults", len(cats), len(model.DefaultCategories))
	}

	if _, err := s.CreateCategory(ctx, model.Category{Name: "Food", OwnerID: "u1"}); !errors.Is(err, model.ErrConstraintViolation) {
		t.Errorf("shadowing a default: err = %v, want constraint violation", err)
	}
	if _, err := s.CreateCategory(ctx, model.Category{Name: "Gym", OwnerID: "u1"}); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if _, err := s.CreateCategory(ctx, model.Category{Name: "Gym", OwnerID: "u1"}); !errors.Is(err, model.ErrConstraintViolation) {
		t.Errorf("duplicate custom: err = %v, want constraint violation", err)
	}

	if _, err := s.InsertTransaction(ctx, txn("u2", "3", "Pets", model.Outflow, day)); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	u1, _ := s.ListCategories(ctx, "u1")
	u2, _ := s.ListCategories(ctx, "u2")
	if len(u1) != len(model.DefaultCategories)+1 || len(u2) != len(model.DefaultCategories)+1 {
		t.Errorf("custom categories leaked across owners: u1=%d u2=%d", len(u1), len(u2))
	}

	_, err = s.db.ExecContext(ctx, `UPDATE categories SET name = 'Groceries' WHERE name = 'Food' AND is_default = 1`)
	if !errors.Is(classify(err), model.ErrConstraintViolation) {
		t.Errorf("mutating a default: err = %v, want constraint violation", err)
	}
}

func TestMarkTransactionSyncedVersionGuard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	saved, err := s.InsertTransaction(ctx, txn("u1", "10", "Food", model.Outflow, day))
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	edited := saved
	edited.Notes = "edited while pushing"
	if _, err := s.UpdateTransaction(ctx, edited); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}

	applied, err := s.MarkTransactionSynced(ctx, saved.ID, 1, "r1")
	if err != nil {
		t.Fatalf("MarkTransactionSynced: %v", err)
	}
	if applied {
		t.Fatalf("stale push marked the row synced")
	}
	got, _ := s.GetTransaction(ctx, saved.ID)
	if got.SyncState != model.Pending || got.RemoteID != "" {
		t.Fatalf("after stale ack: %s/%q, want pending with no remote id", got.SyncState, got.RemoteID)
	}

	if applied, err = s.MarkTransactionSynced(ctx, saved.ID, 2, "r1"); err != nil || !applied {
		t.Fatalf("current ack: applied=%v err=%v", applied, err)
	}
	got, _ = s.GetTransaction(ctx, saved.ID)
	if got.SyncState != model.Synced || got.RemoteID != "r1" {
		t.Fatalf("after ack: %s/%q, want synced/r1", got.SyncState, got.RemoteID)
	}
}

func TestEditingSyncedTransactionClearsRemoteID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	saved, err := s.InsertTransaction(ctx, txn("u1", "10", "Food", model.Outflow, day))
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	if applied, err := s.MarkTransactionSynced(ctx, saved.ID, saved.Version, saved.SyncKey); err != nil || !applied {
		t.Fatalf("MarkTransactionSynced: applied=%v err=%v", applied, err)
	}

	edited := saved
	edited.Notes = "edited after sync"
	got, err := s.UpdateTransaction(ctx, edited)
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if got.SyncState != model.Pending || got.RemoteID != "" {
		t.Errorf("after edit: %s/%q, want pending with no remote id", got.SyncState, got.RemoteID)
	}
	if got.SyncKey != saved.SyncKey {
		t.Errorf("sync key changed on edit: %q != %q", got.SyncKey, saved.SyncKey)
	}

	tests := []struct {
		name  string
		state string
		id    any
	}{
		{"synced without remote id", "synced", nil},
		{"pending with remote id", "pending", "r1"},
		{"rejected with remote id", "rejected", "r1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.db.ExecContext(ctx, `UPDATE transactions SET sync_state = ?, remote_id = ? WHERE id = ?`,
				tt.state, tt.id, saved.ID)
			if !errors.Is(classify(err), model.ErrConstraintViolation) {
				t.Errorf("err = %v, want constraint violation", err)
			}
		})
	}
}

func TestAmountRoundedOnWrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	want := decimal.RequireFromString("12.35")

	saved, err := s.InsertTransaction(ctx, txn("u1", "12.345", "Food", model.Outflow, day))
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	if !saved.Amount.Equal(want) {
		t.Errorf("inserted amount = %s, want %s", saved.Amount, want)
	}
	listed, err := s.QueryTransactions(ctx, Filter{OwnerID: "u1"})
	if err != nil || len(listed) != 1 {
		t.Fatalf("QueryTransactions = %d rows, %v", len(listed), err)
	}
	if !listed[0].Amount.Equal(saved.Amount) {
		t.Errorf("queried amount = %s, insert returned %s", listed[0].Amount, saved.Amount)
	}
	sum, err := s.AggregateSum(ctx, "u1", model.Outflow, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("AggregateSum: %v", err)
	}
	if !sum.Equal(want) {
		t.Errorf("sum = %s, want %s", sum, want)
	}

	edited := saved
	edited.Amount = decimal.RequireFromString("0.004")
	updated, err := s.UpdateTransaction(ctx, edited)
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	got, _ := s.GetTransaction(ctx, saved.ID)
	if !updated.Amount.IsZero() || !got.Amount.Equal(updated.Amount) {
		t.Errorf("updated amount = %s, stored %s, want 0", updated.Amount, got.Amount)
	}
}

func TestConcurrentUpdatesSerialise(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	saved, err := s.InsertTransaction(ctx, txn("u1", "1", "Food", model.Outflow, day))
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	const writers = 8
	writes := make(map[string]model.Transaction, writers)
	for i := 0; i < writers; i++ {
		w := saved
		w.Amount = decimal.NewFromInt(int64(100 + i))
		w.Category = fmt.Sprintf("Cat %d", i)
		w.Notes = fmt.Sprintf("writer %d", i)
		w.OccurredAt = day.Add(time.Duration(i) * time.Hour)
		writes[w.Notes] = w
	}

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for _, w := range writes {
		wg.Add(1)
		go func(w model.Transaction) {
			defer wg.Done()
			if _, err := s.UpdateTransaction(ctx, w); err != nil {
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("UpdateTransaction: %v", err)
	}

	got, err := s.GetTransaction(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Version != 1+writers {
		t.Errorf("version = %d, want %d", got.Version, 1+writers)
	}
	w, ok := writes[got.Notes]
	if !ok {
		t.Fatalf("final notes %q match no write", got.Notes)
	}
	if !got.Amount.Equal(w.Amount) || got.Category != w.Category || !got.OccurredAt.Equal(model.NormalizeTime(w.OccurredAt)) {
		t.Errorf("final row mixes writes: got %s/%s/%v, want %s/%s/%v",
			got.Amount, got.Category, got.OccurredAt, w.Amount, w.Category, w.OccurredAt)
	}
}

func TestMarkTransactionFailed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	saved, err := s.InsertTransaction(ctx, txn("u1", "10", "Food", model.Outflow, day))
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	got, err := s.MarkTransactionFailed(ctx, saved.ID, saved.Version, errors.New("timeout"), false)
	if err != nil {
		t.Fatalf("MarkTransactionFailed: %v", err)
	}
	if got.SyncState != model.Pending || got.SyncAttempts != 1 || got.LastSyncError != "timeout" {
		t.Fatalf("after transient: %+v", got)
	}

	got, err = s.MarkTransactionFailed(ctx, saved.ID, saved.Version, errors.New("denied"), true)
	if err != nil {
		t.Fatalf("MarkTransactionFailed: %v", err)
	}
	if got.SyncState != model.Rejected {
		t.Fatalf("after permanent: %s, want rejected", got.SyncState)
	}

	n, err := s.ResetRejected(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("ResetRejected = %d, %v", n, err)
	}
	pending, _ := s.ListUnsyncedTransactions(ctx, "u1", 0, 10)
	if len(pending) != 1 || pending[0].SyncAttempts != 0 {
		t.Fatalf("pending after reset = %+v", pending)
	}
}

func TestReassignAndFinalizeGuestMigration(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.EnsureGuestProfile(ctx, "USD"); err != nil {
		t.Fatalf("EnsureGuestProfile: %v", err)
	}
	if _, err := s.UpdateBudget(ctx, model.GuestID, decimal.RequireFromString("500")); err != nil {
		t.Fatalf("UpdateBudget: %v", err)
	}
	a, _ := s.InsertTransaction(ctx, txn(model.GuestID, "10", "Gym", model.Outflow, day))
	b, _ := s.InsertTransaction(ctx, txn(model.GuestID, "20", "Food", model.Outflow, day))

	if done, err := s.FinalizeGuestMigration(ctx, "u1"); err != nil || done {
		t.Fatalf("finalize with guest rows left: done=%v err=%v", done, err)
	}

	for _, r := range []model.Transaction{a, b} {
		moved, err := s.ReassignTransaction(ctx, r.ID, r.Version, model.GuestID, "u1", r.SyncKey)
		if err != nil || !moved {
			t.Fatalf("ReassignTransaction(%d): moved=%v err=%v", r.ID, moved, err)
		}
	}
	if moved, err := s.ReassignTransaction(ctx, a.ID, a.Version, model.GuestID, "u1", a.SyncKey); err != nil || moved {
		t.Fatalf("second reassign: moved=%v err=%v", moved, err)
	}

	for _, c := range []model.Category{
		{Name: "Travel", Icon: "✈️", ColorHex: "#112233", OwnerID: model.GuestID},
		{Name: "Books", Icon: "📚", ColorHex: "#445566", OwnerID: model.GuestID},
		{Name: "Travel", Icon: "🚆", ColorHex: "#778899", OwnerID: "u1"},
		{Name: "Travel (guest)", OwnerID: "u1"},
	} {
		if _, err := s.CreateCategory(ctx, c); err != nil {
			t.Fatalf("CreateCategory(%s/%s): %v", c.OwnerID, c.Name, err)
		}
	}

	done, err := s.FinalizeGuestMigration(ctx, "u1")
	if err != nil || !done {
		t.Fatalf("FinalizeGuestMigration: done=%v err=%v", done, err)
	}

	if _, err := s.GetProfile(ctx, model.GuestID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("guest profile still present: %v", err)
	}
	p, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile(u1): %v", err)
	}
	if !p.MonthlyBudget.Equal(decimal.RequireFromString("500")) || p.CurrencyCode != "USD" || p.SyncState != model.Pending {
		t.Errorf("seeded profile = %+v", p)
	}

	rows, _ := s.QueryTransactions(ctx, Filter{OwnerID: "u1"})
	if len(rows) != 2 {
		t.Fatalf("u1 has %d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if r.SyncState != model.Synced || r.RemoteID != r.SyncKey {
			t.Errorf("migrated row %d: %s/%q", r.ID, r.SyncState, r.RemoteID)
		}
	}
	cats, _ := s.ListCategories(ctx, "u1")
	custom := make(map[string]model.Category)
	for _, c := range cats {
		if !c.IsDefault {
			custom[c.Name] = c
		}
	}
	if len(custom) != 5 {
		t.Errorf("u1 custom categories = %v, want 5", custom)
	}
	if _, ok := custom["Gym"]; !ok {
		t.Error("custom category Gym not carried over")
	}
	if c := custom["Books"]; c.Icon != "📚" {
		t.Errorf("Books = %+v, want moved with its icon", c)
	}
	if c := custom["Travel"]; c.Icon != "🚆" {
		t.Errorf("Travel = %+v, want u1's own copy untouched", c)
	}
	if c := custom["Travel (guest 2)"]; c.Icon != "✈️" || c.ColorHex != "#112233" {
		t.Errorf("clashing guest Travel = %+v, want kept under a free name", c)
	}
	guestCats, _ := s.ListCategories(ctx, model.GuestID)
	if len(guestCats) != len(model.DefaultCategories) {
		t.Errorf("guest still has custom categories: %d", len(guestCats))
	}
}

func TestObserve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)

	sub, err := s.Observe(ctx, Filter{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if snap := <-sub.C; len(snap) != 0 {
		t.Fatalf("initial snapshot has %d rows", len(snap))
	}

	if _, err := s.InsertTransaction(ctx, txn("u1", "1", "Food", model.Outflow, day)); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	select {
	case snap := <-sub.C:
		if len(snap) != 1 {
			t.Fatalf("snapshot has %d rows, want 1", len(snap))
		}
	default:
		t.Fatalf("no snapshot delivered before the write returned")
	}

	if _, err := s.InsertTransaction(ctx, txn("u2", "1", "Food", model.Outflow, day)); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	select {
	case snap := <-sub.C:
		t.Fatalf("unexpected emission for another owner: %d rows", len(snap))
	default:
	}

	for i := 0; i < 3; i++ {
		if _, err := s.InsertTransaction(ctx, txn("u1", "1", "Food", model.Outflow, day)); err != nil {
			t.Fatalf("InsertTransaction: %v", err)
		}
	}
	if snap := <-sub.C; len(snap) != 4 {
		t.Fatalf("coalesced snapshot has %d rows, want 4", len(snap))
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("subscription not closed after context cancel")
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, model.ErrNotFound},
		{"wrapped no rows", errors.Join(errors.New("ctx"), sql.ErrNoRows), model.ErrNotFound},
		{"already classified", model.ErrConstraintViolation, model.ErrConstraintViolation},
		{"other", errors.New("disk I/O error"), model.ErrStorageFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
	if classify(nil) != nil {
		t.Errorf("classify(nil) != nil")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	for i := 0; i < 2; i++ {
		s, err := NewSQLiteStore(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		s.Close()
	}
	v, dirty, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 2 || dirty {
		t.Errorf("schema version = %d dirty=%v, want 2 clean", v, dirty)
	}
}
