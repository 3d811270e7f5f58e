package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger/internal/model"
)

// InsertTransaction commits a new record and assigns its id, sync key and
// initial sync state. A category not yet known to the owner is created.
func (s *Store) InsertTransaction(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	t.OccurredAt = model.NormalizeTime(t.OccurredAt)
	t.Amount = model.NormalizeAmount(t.Amount)
	if err := t.Validate(); err != nil {
		return model.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	now := s.timestamp()
	t.SyncKey = uuid.NewString()
	t.Version = 1
	t.SyncState = model.InitialSyncState(t.OwnerID)
	t.RemoteID = ""
	t.SyncAttempts = 0
	t.LastSyncError = ""
	t.CreatedAt, t.UpdatedAt = now, now

	err := s.InTx(ctx, func(q *Queries) error {
		if _, err := s.ensureCategory(ctx, q, t.OwnerID, t.Category); err != nil {
			return err
		}
		id, err := q.InsertTransaction(ctx, t)
		if err != nil {
			return err
		}
		t.ID = id
		return nil
	})
	if err != nil {
		return model.Transaction{}, wrap("insert transaction", err)
	}

	slog.DebugContext(ctx, "Transaction saved",
		"id", t.ID,
		"owner_id", t.OwnerID,
		"kind", t.Kind,
		"amount", t.Amount.String(),
		"sync_state", t.SyncState)

	s.hub.notify(ctx, t.OwnerID)
	return t, nil
}

// UpdateTransaction replaces the editable fields of an existing record owned
// by t.OwnerID. The record becomes unsynced again and loses its remote id.
func (s *Store) UpdateTransaction(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	t.OccurredAt = model.NormalizeTime(t.OccurredAt)
	t.Amount = model.NormalizeAmount(t.Amount)
	if err := t.Validate(); err != nil {
		return model.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	var updated model.Transaction
	err := s.InTx(ctx, func(q *Queries) error {
		cur, err := q.GetTransaction(ctx, t.ID)
		if err != nil {
			return err
		}
		if cur.OwnerID != t.OwnerID {
			return model.ErrNotFound
		}
		if _, err := s.ensureCategory(ctx, q, t.OwnerID, t.Category); err != nil {
			return err
		}
		t.SyncState = model.InitialSyncState(cur.OwnerID)
		t.UpdatedAt = s.timestamp()
		if _, err := q.UpdateTransactionContent(ctx, t); err != nil {
			return err
		}
		updated, err = q.GetTransaction(ctx, t.ID)
		return err
	})
	if err != nil {
		return model.Transaction{}, wrap(fmt.Sprintf("update transaction %d", t.ID), err)
	}

	s.hub.notify(ctx, updated.OwnerID)
	return updated, nil
}

// DeleteTransaction hard-deletes a record owned by ownerID and returns the
// deleted row so the caller can clean up its remote copy.
func (s *Store) DeleteTransaction(ctx context.Context, ownerID string, id int64) (model.Transaction, error) {
	var deleted model.Transaction
	err := s.InTx(ctx, func(q *Queries) error {
		cur, err := q.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if cur.OwnerID != ownerID {
			return model.ErrNotFound
		}
		if _, err := q.DeleteTransaction(ctx, id); err != nil {
			return err
		}
		deleted = cur
		return nil
	})
	if err != nil {
		return model.Transaction{}, wrap(fmt.Sprintf("delete transaction %d", id), err)
	}

	slog.DebugContext(ctx, "Transaction deleted", "id", id, "owner_id", ownerID)
	s.hub.notify(ctx, ownerID)
	return deleted, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (model.Transaction, error) {
	t, err := s.queries.GetTransaction(ctx, id)
	if err != nil {
		return model.Transaction{}, wrap(fmt.Sprintf("get transaction %d", id), err)
	}
	return t, nil
}

// QueryTransactions returns the owner's records newest first (ties by id).
func (s *Store) QueryTransactions(ctx context.Context, f Filter) ([]model.Transaction, error) {
	if f.OwnerID == "" {
		return nil, fmt.Errorf("query transactions: %w", model.ErrEmptyOwner)
	}
	out, err := s.queries.ListTransactions(ctx, f)
	if err != nil {
		return nil, wrap("query transactions", err)
	}
	return out, nil
}

// AggregateSum totals the owner's amounts of kind in [from, to]. An empty
// range sums to zero.
func (s *Store) AggregateSum(ctx context.Context, ownerID string, kind model.Kind, from, to time.Time) (decimal.Decimal, error) {
	rows, err := s.queries.ListAmounts(ctx, Filter{OwnerID: ownerID, Kind: kind, From: from, To: to})
	if err != nil {
		return decimal.Zero, wrap("aggregate sum", err)
	}
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return total, nil
}

// SumByCategory groups the owner's amounts of kind in [from, to], largest first.
func (s *Store) SumByCategory(ctx context.Context, ownerID string, kind model.Kind, from, to time.Time) ([]model.CategoryAmount, error) {
	rows, err := s.queries.ListAmounts(ctx, Filter{OwnerID: ownerID, Kind: kind, From: from, To: to})
	if err != nil {
		return nil, wrap("sum by category", err)
	}

	sums := make(map[string]decimal.Decimal)
	for _, r := range rows {
		sums[r.Name] = sums[r.Name].Add(r.Amount)
	}
	out := make([]model.CategoryAmount, 0, len(sums))
	for name, amount := range sums {
		out = append(out, model.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) CountTransactions(ctx context.Context, ownerID string) (int64, error) {
	n, err := s.queries.CountTransactions(ctx, ownerID)
	if err != nil {
		return 0, wrap("count transactions", err)
	}
	return n, nil
}

// MarkTransactionSynced records a successful push of version. When the row
// was written again in the meantime it is left pending without a remote id;
// the returned bool reports whether the state changed.
func (s *Store) MarkTransactionSynced(ctx context.Context, id, version int64, remoteID string) (bool, error) {
	var (
		applied bool
		owner   string
	)
	err := s.InTx(ctx, func(q *Queries) error {
		cur, err := q.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		owner = cur.OwnerID
		n, err := q.MarkTransactionSynced(ctx, id, version, remoteID)
		if err != nil {
			return err
		}
		applied = n > 0
		return nil
	})
	if err != nil {
		return false, wrap(fmt.Sprintf("mark transaction %d synced", id), err)
	}

	slog.DebugContext(ctx, "Transaction marked as synced", "id", id, "version", version, "applied", applied)
	s.hub.notify(ctx, owner)
	return applied, nil
}

// MarkTransactionFailed records a failed push. Permanent failures reject the
// row unless it changed since version was pushed.
func (s *Store) MarkTransactionFailed(ctx context.Context, id, version int64, cause error, permanent bool) (model.Transaction, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	var updated model.Transaction
	err := s.InTx(ctx, func(q *Queries) error {
		n, err := q.MarkTransactionFailed(ctx, id, version, msg, permanent)
		if err != nil {
			return err
		}
		if n == 0 {
			return model.ErrNotFound
		}
		updated, err = q.GetTransaction(ctx, id)
		return err
	})
	if err != nil {
		return model.Transaction{}, wrap(fmt.Sprintf("mark transaction %d failed", id), err)
	}

	slog.WarnContext(ctx, "Transaction sync failed",
		"id", id,
		"version", version,
		"permanent", permanent,
		"attempts", updated.SyncAttempts,
		"error", msg)
	s.hub.notify(ctx, updated.OwnerID)
	return updated, nil
}

// ListUnsyncedTransactions returns up to limit of the owner's pending records
// with an id greater than afterID, oldest first.
func (s *Store) ListUnsyncedTransactions(ctx context.Context, ownerID string, afterID int64, limit int) ([]model.Transaction, error) {
	out, err := s.queries.ListTransactionsByState(ctx, ownerID, model.Pending, afterID, limit)
	if err != nil {
		return nil, wrap("list unsynced transactions", err)
	}
	return out, nil
}

func (s *Store) ListRejectedTransactions(ctx context.Context, ownerID string) ([]model.Transaction, error) {
	out, err := s.queries.ListTransactionsByState(ctx, ownerID, model.Rejected, 0, 0)
	if err != nil {
		return nil, wrap("list rejected transactions", err)
	}
	return out, nil
}

// ResetRejected moves the owner's rejected records and profile back to
// pending and returns how many transactions were reset.
func (s *Store) ResetRejected(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := s.InTx(ctx, func(q *Queries) error {
		var err error
		if n, err = q.ResetRejected(ctx, ownerID, s.timestamp()); err != nil {
			return err
		}
		_, err = q.ResetRejectedProfile(ctx, ownerID)
		return err
	})
	if err != nil {
		return 0, wrap("reset rejected", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Rejected transactions reset to pending", "owner_id", ownerID, "count", n)
		s.hub.notify(ctx, ownerID)
	}
	return n, nil
}

// ReassignTransaction rewrites a migrated record under toOwner as synced with
// remoteID. It returns false when the row is no longer owned by fromOwner at
// version, which leaves it untouched.
func (s *Store) ReassignTransaction(ctx context.Context, id, version int64, fromOwner, toOwner, remoteID string) (bool, error) {
	var moved bool
	err := s.InTx(ctx, func(q *Queries) error {
		if _, err := s.ensureCategoryFor(ctx, q, fromOwner, toOwner, id); err != nil {
			return err
		}
		n, err := q.ReassignTransaction(ctx, id, version, fromOwner, toOwner, remoteID, s.timestamp())
		if err != nil {
			return err
		}
		moved = n > 0
		return nil
	})
	if err != nil {
		return false, wrap(fmt.Sprintf("reassign transaction %d", id), err)
	}
	if moved {
		s.hub.notify(ctx, fromOwner, toOwner)
	}
	return moved, nil
}
