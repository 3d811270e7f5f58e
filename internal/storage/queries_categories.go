package storage

import (
	"context"

	"ledger/internal/model"
)

const categoryColumns = `id, name, icon, color_hex, is_default, owner_id`

func scanCategory(row rowScanner) (model.Category, error) {
	var (
		c         model.Category
		isDefault int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Icon, &c.ColorHex, &isDefault, &c.OwnerID); err != nil {
		return model.Category{}, err
	}
	c.IsDefault = isDefault == 1
	return c, nil
}

// ListCategories returns the defaults plus the owner's custom categories.
func (q *Queries) ListCategories(ctx context.Context, ownerID string) ([]model.Category, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories
		WHERE is_default = 1 OR owner_id = ?
		ORDER BY name COLLATE NOCASE, is_default DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindCategory looks up name among the defaults first, then the owner's custom set.
func (q *Queries) FindCategory(ctx context.Context, ownerID, name string) (model.Category, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories
		WHERE name = ? AND (is_default = 1 OR owner_id = ?)
		ORDER BY is_default DESC LIMIT 1`, name, ownerID)
	return scanCategory(row)
}

func (q *Queries) InsertCategory(ctx context.Context, c model.Category) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO categories (name, icon, color_hex, is_default, owner_id)
		VALUES (?, ?, ?, 0, ?)`, c.Name, c.Icon, c.ColorHex, c.OwnerID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// MoveCategory hands a custom category to ownerID under name.
func (q *Queries) MoveCategory(ctx context.Context, id int64, ownerID, name string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE categories SET owner_id = ?, name = ?
		WHERE id = ? AND is_default = 0`, ownerID, name, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND is_default = 0`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
