package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/model"
)

const transactionColumns = `id, amount, category, occurred_at, notes, kind, owner_id,
	sync_state, remote_id, sync_key, version, sync_attempts, last_sync_error, created_at, updated_at`

// Filter narrows a transaction query. Zero values mean "any".
type Filter struct {
	OwnerID  string
	Kind     model.Kind
	Category string
	From     time.Time // inclusive
	To       time.Time // inclusive
	Limit    int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		t                      model.Transaction
		amount, kind, state    string
		remoteID               sql.NullString
		occurred, created, upd int64
	)
	err := row.Scan(&t.ID, &amount, &t.Category, &occurred, &t.Notes, &kind, &t.OwnerID,
		&state, &remoteID, &t.SyncKey, &t.Version, &t.SyncAttempts, &t.LastSyncError, &created, &upd)
	if err != nil {
		return model.Transaction{}, err
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("decode amount of transaction %d: %w", t.ID, err)
	}
	t.Kind = model.Kind(kind)
	t.SyncState = model.SyncState(state)
	t.RemoteID = remoteID.String
	t.OccurredAt = fromMillis(occurred)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(upd)
	return t, nil
}

func (q *Queries) InsertTransaction(ctx context.Context, t model.Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO transactions
		(amount, category, occurred_at, notes, kind, owner_id, sync_state, remote_id, sync_key,
		 version, sync_attempts, last_sync_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)`,
		t.Amount.StringFixed(2), t.Category, toMillis(t.OccurredAt), t.Notes, string(t.Kind), t.OwnerID,
		string(t.SyncState), nullString(t.RemoteID), t.SyncKey, t.Version,
		toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (model.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// UpdateTransactionContent rewrites the user-editable fields and bumps the version.
// Sync bookkeeping is reset and the remote id cleared, since only synced rows carry one.
func (q *Queries) UpdateTransactionContent(ctx context.Context, t model.Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE transactions SET
		amount = ?, category = ?, occurred_at = ?, notes = ?, kind = ?,
		sync_state = ?, remote_id = NULL, version = version + 1, sync_attempts = 0, last_sync_error = '',
		updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		t.Amount.StringFixed(2), t.Category, toMillis(t.OccurredAt), t.Notes, string(t.Kind),
		string(t.SyncState), toMillis(t.UpdatedAt), t.ID, t.OwnerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func buildTransactionWhere(f Filter) (string, []any) {
	clauses := []string{"owner_id = ?"}
	args := []any{f.OwnerID}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, toMillis(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "occurred_at <= ?")
		args = append(args, toMillis(f.To))
	}
	return strings.Join(clauses, " AND "), args
}

func (q *Queries) ListTransactions(ctx context.Context, f Filter) ([]model.Transaction, error) {
	where, args := buildTransactionWhere(f)
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where +
		` ORDER BY occurred_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListAmounts returns (category, amount) pairs for the filter. Amounts are
// stored as decimal text, so summation happens in Go to stay exact.
func (q *Queries) ListAmounts(ctx context.Context, f Filter) ([]model.CategoryAmount, error) {
	where, args := buildTransactionWhere(f)
	rows, err := q.db.QueryContext(ctx, `SELECT category, amount FROM transactions WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CategoryAmount
	for rows.Next() {
		var name, amount string
		if err := rows.Scan(&name, &amount); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("decode amount %q: %w", amount, err)
		}
		out = append(out, model.CategoryAmount{Name: name, Amount: d})
	}
	return out, rows.Err()
}

func (q *Queries) CountTransactions(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE owner_id = ?`, ownerID).Scan(&n)
	return n, err
}

// MarkTransactionSynced applies only when version still matches the pushed one.
func (q *Queries) MarkTransactionSynced(ctx context.Context, id, version int64, remoteID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE transactions SET
		sync_state = 'synced', remote_id = ?, sync_attempts = 0, last_sync_error = ''
		WHERE id = ? AND version = ? AND sync_state = 'pending'`,
		remoteID, id, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkTransactionFailed records the attempt. A permanent failure rejects the
// row only if no newer local write happened since the push started.
func (q *Queries) MarkTransactionFailed(ctx context.Context, id, version int64, msg string, permanent bool) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE transactions SET
		sync_attempts = sync_attempts + 1,
		last_sync_error = ?,
		sync_state = CASE WHEN ? = 1 AND version = ? AND sync_state = 'pending' THEN 'rejected' ELSE sync_state END
		WHERE id = ?`,
		msg, boolToInt(permanent), version, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) ListTransactionsByState(ctx context.Context, ownerID string, state model.SyncState, afterID int64, limit int) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE owner_id = ? AND sync_state = ? AND id > ? ORDER BY id`
	args := []any{ownerID, string(state), afterID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) ResetRejected(ctx context.Context, ownerID string, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE transactions SET
		sync_state = 'pending', sync_attempts = 0, last_sync_error = '', updated_at = ?
		WHERE owner_id = ? AND sync_state = 'rejected'`,
		toMillis(now), ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReassignTransaction moves a row to a new owner as already synced.
// The owner and version guards make a concurrent rerun or edit a no-op.
func (q *Queries) ReassignTransaction(ctx context.Context, id, version int64, fromOwner, toOwner, remoteID string, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE transactions SET
		owner_id = ?, remote_id = ?, sync_state = 'synced', sync_attempts = 0, last_sync_error = '',
		version = version + 1, updated_at = ?
		WHERE id = ? AND owner_id = ? AND version = ?`,
		toOwner, remoteID, toMillis(now), id, fromOwner, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
