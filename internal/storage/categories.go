package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ledger/internal/model"
)

func categoryKey(ownerID, name string) string {
	return ownerID + "\x00" + name
}

// lookupCategory resolves name for ownerID through the cache.
func (s *Store) lookupCategory(ctx context.Context, q *Queries, ownerID, name string) (model.Category, error) {
	if c, ok := s.categories.Get(categoryKey(ownerID, name)); ok {
		return c, nil
	}
	c, err := q.FindCategory(ctx, ownerID, name)
	if err != nil {
		return model.Category{}, classify(err)
	}
	s.categories.Set(categoryKey(ownerID, name), c)
	return c, nil
}

// ensureCategory returns the category named name, creating a custom one for
// ownerID on first use.
func (s *Store) ensureCategory(ctx context.Context, q *Queries, ownerID, name string) (model.Category, error) {
	name = strings.TrimSpace(name)
	c, err := s.lookupCategory(ctx, q, ownerID, name)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Category{}, err
	}

	c = model.Category{
		Name:     name,
		Icon:     model.CustomCategoryIcon,
		ColorHex: model.CustomCategoryColor,
		OwnerID:  ownerID,
	}
	if err := c.Validate(); err != nil {
		return model.Category{}, err
	}
	if c.ID, err = q.InsertCategory(ctx, c); err != nil {
		return model.Category{}, err
	}
	return c, nil
}

// ensureCategoryFor copies the category of transaction id from fromOwner to
// toOwner so a migrated record never references a category its new owner
// cannot see.
func (s *Store) ensureCategoryFor(ctx context.Context, q *Queries, fromOwner, toOwner string, id int64) (model.Category, error) {
	t, err := q.GetTransaction(ctx, id)
	if err != nil {
		return model.Category{}, err
	}
	if t.OwnerID != fromOwner {
		return model.Category{}, nil
	}
	src, err := s.lookupCategory(ctx, q, fromOwner, t.Category)
	if errors.Is(err, model.ErrNotFound) {
		return s.ensureCategory(ctx, q, toOwner, t.Category)
	}
	if err != nil || src.IsDefault {
		return src, err
	}
	if dst, err := s.lookupCategory(ctx, q, toOwner, src.Name); err == nil {
		return dst, nil
	}
	dst := model.Category{Name: src.Name, Icon: src.Icon, ColorHex: src.ColorHex, OwnerID: toOwner}
	if dst.ID, err = q.InsertCategory(ctx, dst); err != nil {
		return model.Category{}, err
	}
	return dst, nil
}

// ListCategories returns the defaults plus ownerID's custom categories by name.
func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]model.Category, error) {
	out, err := s.queries.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, wrap("list categories", err)
	}
	return out, nil
}

// EnsureCategory resolves name for ownerID, creating a custom category if needed.
func (s *Store) EnsureCategory(ctx context.Context, ownerID, name string) (model.Category, error) {
	var c model.Category
	err := s.InTx(ctx, func(q *Queries) error {
		var err error
		c, err = s.ensureCategory(ctx, q, ownerID, name)
		return err
	})
	if err != nil {
		return model.Category{}, wrap("ensure category", err)
	}
	return c, nil
}

// CreateCategory adds a custom category. Default names are reserved.
func (s *Store) CreateCategory(ctx context.Context, c model.Category) (model.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.IsDefault {
		return model.Category{}, fmt.Errorf("create category: %w: default categories are read-only", model.ErrConstraintViolation)
	}
	if c.Icon == "" {
		c.Icon = model.CustomCategoryIcon
	}
	if c.ColorHex == "" {
		c.ColorHex = model.CustomCategoryColor
	}
	if err := c.Validate(); err != nil {
		return model.Category{}, fmt.Errorf("create category: %w", err)
	}

	err := s.InTx(ctx, func(q *Queries) error {
		existing, err := q.FindCategory(ctx, c.OwnerID, c.Name)
		if err == nil {
			if existing.IsDefault {
				return fmt.Errorf("%w: %q is a default category", model.ErrConstraintViolation, c.Name)
			}
			return fmt.Errorf("%w: category %q already exists", model.ErrConstraintViolation, c.Name)
		}
		if err := classify(err); !errors.Is(err, model.ErrNotFound) {
			return err
		}
		c.ID, err = q.InsertCategory(ctx, c)
		return err
	})
	if err != nil {
		return model.Category{}, wrap("create category", err)
	}
	s.categories.Delete(categoryKey(c.OwnerID, c.Name))
	return c, nil
}

// reassignCategories moves fromOwner's custom categories to toOwner. When
// toOwner already has the name, a copy with the same icon and color is the
// one record migration made and the two merge; any other clash keeps the
// category under a free "Name (fromOwner)" name. Nothing is dropped.
func reassignCategories(ctx context.Context, q *Queries, fromOwner, toOwner string) (moved, merged int64, err error) {
	cats, err := q.ListCategories(ctx, fromOwner)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range cats {
		if c.IsDefault {
			continue
		}
		name := c.Name
		dst, err := q.FindCategory(ctx, toOwner, c.Name)
		switch err := classify(err); {
		case errors.Is(err, model.ErrNotFound):
		case err != nil:
			return 0, 0, err
		case !dst.IsDefault && dst.Icon == c.Icon && dst.ColorHex == c.ColorHex:
			if _, err := q.DeleteCategory(ctx, c.ID); err != nil {
				return 0, 0, err
			}
			merged++
			continue
		default:
			if name, err = freeCategoryName(ctx, q, toOwner, c.Name, fromOwner); err != nil {
				return 0, 0, err
			}
		}
		if _, err := q.MoveCategory(ctx, c.ID, toOwner, name); err != nil {
			return 0, 0, err
		}
		moved++
	}
	return moved, merged, nil
}

// freeCategoryName returns the first of "name (tag)", "name (tag 2)", ...
// that ownerID does not use yet.
func freeCategoryName(ctx context.Context, q *Queries, ownerID, name, tag string) (string, error) {
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%s)", name, tag)
		if i > 1 {
			candidate = fmt.Sprintf("%s (%s %d)", name, tag, i)
		}
		_, err := q.FindCategory(ctx, ownerID, candidate)
		if err := classify(err); errors.Is(err, model.ErrNotFound) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
}

func (s *Store) invalidateCategories(owners ...string) {
	for _, owner := range owners {
		s.categories.DeletePrefix(owner + "\x00")
	}
}
