package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"ledger/internal/model"
)

const profileColumns = `id, owner_id, display_name, email, monthly_budget, currency_code, photo_ref,
	is_guest, sync_state, version, last_sync_error, created_at, updated_at`

func scanProfile(row rowScanner) (model.Profile, error) {
	var (
		p                     model.Profile
		budget, state         string
		isGuest, created, upd int64
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.DisplayName, &p.Email, &budget, &p.CurrencyCode, &p.PhotoRef,
		&isGuest, &state, &p.Version, &p.LastSyncError, &created, &upd)
	if err != nil {
		return model.Profile{}, err
	}
	p.MonthlyBudget, err = decimal.NewFromString(budget)
	if err != nil {
		return model.Profile{}, fmt.Errorf("decode budget of profile %s: %w", p.OwnerID, err)
	}
	p.IsGuest = isGuest == 1
	p.SyncState = model.SyncState(state)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(upd)
	return p, nil
}

func (q *Queries) GetProfile(ctx context.Context, ownerID string) (model.Profile, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE owner_id = ?`, ownerID)
	return scanProfile(row)
}

func (q *Queries) InsertProfile(ctx context.Context, p model.Profile) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO profiles
		(owner_id, display_name, email, monthly_budget, currency_code, photo_ref, is_guest,
		 sync_state, version, last_sync_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, '', ?, ?)`,
		p.OwnerID, p.DisplayName, p.Email, p.MonthlyBudget.StringFixed(2), p.CurrencyCode, p.PhotoRef,
		boolToInt(p.IsGuest), string(p.SyncState), toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) UpdateProfile(ctx context.Context, p model.Profile) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE profiles SET
		display_name = ?, email = ?, monthly_budget = ?, currency_code = ?, photo_ref = ?,
		sync_state = ?, version = version + 1, last_sync_error = '', updated_at = ?
		WHERE owner_id = ?`,
		p.DisplayName, p.Email, p.MonthlyBudget.StringFixed(2), p.CurrencyCode, p.PhotoRef,
		string(p.SyncState), toMillis(p.UpdatedAt), p.OwnerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) MarkProfileSynced(ctx context.Context, ownerID string, version int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE profiles SET sync_state = 'synced', last_sync_error = ''
		WHERE owner_id = ? AND version = ? AND sync_state = 'pending'`, ownerID, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) MarkProfileFailed(ctx context.Context, ownerID string, version int64, msg string, permanent bool) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE profiles SET
		last_sync_error = ?,
		sync_state = CASE WHEN ? = 1 AND version = ? AND sync_state = 'pending' THEN 'rejected' ELSE sync_state END
		WHERE owner_id = ?`, msg, boolToInt(permanent), version, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) ResetRejectedProfile(ctx context.Context, ownerID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE profiles SET sync_state = 'pending', last_sync_error = ''
		WHERE owner_id = ? AND sync_state = 'rejected'`, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteProfile(ctx context.Context, ownerID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM profiles WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
