package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/model"
)

func (s *Store) GetProfile(ctx context.Context, ownerID string) (model.Profile, error) {
	p, err := s.queries.GetProfile(ctx, ownerID)
	if err != nil {
		return model.Profile{}, wrap(fmt.Sprintf("get profile %s", ownerID), err)
	}
	return p, nil
}

// SaveProfile inserts or updates the profile of p.OwnerID. Every save makes
// an authenticated profile pending again.
func (s *Store) SaveProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	p.CurrencyCode = strings.ToUpper(strings.TrimSpace(p.CurrencyCode))
	if p.CurrencyCode == "" {
		p.CurrencyCode = model.DefaultCurrency
	}
	p.IsGuest = p.OwnerID == model.GuestID
	if err := p.Validate(); err != nil {
		return model.Profile{}, fmt.Errorf("save profile: %w", err)
	}

	var saved model.Profile
	err := s.InTx(ctx, func(q *Queries) error {
		var err error
		saved, err = saveProfile(ctx, q, p, s.timestamp())
		return err
	})
	if err != nil {
		return model.Profile{}, wrap("save profile", err)
	}

	slog.DebugContext(ctx, "Profile saved", "owner_id", saved.OwnerID, "version", saved.Version)
	return saved, nil
}

func saveProfile(ctx context.Context, q *Queries, p model.Profile, now time.Time) (model.Profile, error) {
	p.SyncState = model.InitialSyncState(p.OwnerID)
	p.UpdatedAt = now

	_, err := q.GetProfile(ctx, p.OwnerID)
	switch err := classify(err); {
	case err == nil:
		if _, err := q.UpdateProfile(ctx, p); err != nil {
			return model.Profile{}, err
		}
	case errors.Is(err, model.ErrNotFound):
		p.CreatedAt = now
		if _, err := q.InsertProfile(ctx, p); err != nil {
			return model.Profile{}, err
		}
	default:
		return model.Profile{}, err
	}
	return q.GetProfile(ctx, p.OwnerID)
}

// EditProfile applies edit to ownerID's profile inside one transaction,
// starting from an empty profile with currency when none exists yet.
func (s *Store) EditProfile(ctx context.Context, ownerID, currency string, edit func(p *model.Profile)) (model.Profile, error) {
	var saved model.Profile
	err := s.InTx(ctx, func(q *Queries) error {
		p, err := q.GetProfile(ctx, ownerID)
		switch err := classify(err); {
		case errors.Is(err, model.ErrNotFound):
			p = model.Profile{OwnerID: ownerID, CurrencyCode: currency}
		case err != nil:
			return err
		}
		edit(&p)
		p.OwnerID = ownerID
		p.IsGuest = ownerID == model.GuestID
		p.CurrencyCode = strings.ToUpper(strings.TrimSpace(p.CurrencyCode))
		if p.CurrencyCode == "" {
			p.CurrencyCode = model.DefaultCurrency
		}
		if err := p.Validate(); err != nil {
			return err
		}
		saved, err = saveProfile(ctx, q, p, s.timestamp())
		return err
	})
	if err != nil {
		return model.Profile{}, wrap("edit profile", err)
	}
	return saved, nil
}

// UpdateBudget sets the monthly budget of an existing profile.
func (s *Store) UpdateBudget(ctx context.Context, ownerID string, budget decimal.Decimal) (model.Profile, error) {
	if budget.IsNegative() {
		return model.Profile{}, fmt.Errorf("update budget: %w: monthly budget must not be negative", model.ErrConstraintViolation)
	}

	var saved model.Profile
	err := s.InTx(ctx, func(q *Queries) error {
		p, err := q.GetProfile(ctx, ownerID)
		if err != nil {
			return err
		}
		p.MonthlyBudget = model.NormalizeAmount(budget)
		saved, err = saveProfile(ctx, q, p, s.timestamp())
		return err
	})
	if err != nil {
		return model.Profile{}, wrap("update budget", err)
	}
	return saved, nil
}

// MarkProfileSynced applies only when version is still current.
func (s *Store) MarkProfileSynced(ctx context.Context, ownerID string, version int64) (bool, error) {
	n, err := s.queries.MarkProfileSynced(ctx, ownerID, version)
	if err != nil {
		return false, wrap("mark profile synced", err)
	}
	return n > 0, nil
}

func (s *Store) MarkProfileFailed(ctx context.Context, ownerID string, version int64, cause error, permanent bool) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	n, err := s.queries.MarkProfileFailed(ctx, ownerID, version, msg, permanent)
	if err != nil {
		return wrap("mark profile failed", err)
	}
	if n == 0 {
		return fmt.Errorf("mark profile failed: %w", model.ErrNotFound)
	}
	slog.WarnContext(ctx, "Profile sync failed", "owner_id", ownerID, "permanent", permanent, "error", msg)
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, ownerID string) error {
	n, err := s.queries.DeleteProfile(ctx, ownerID)
	if err != nil {
		return wrap("delete profile", err)
	}
	if n == 0 {
		return fmt.Errorf("delete profile %s: %w", ownerID, model.ErrNotFound)
	}
	return nil
}

// EnsureGuestProfile creates the guest profile on first start.
func (s *Store) EnsureGuestProfile(ctx context.Context, currency string) (model.Profile, error) {
	p, err := s.GetProfile(ctx, model.GuestID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Profile{}, err
	}

	slog.InfoContext(ctx, "Creating guest profile", "currency", currency)
	return s.SaveProfile(ctx, model.Profile{
		OwnerID:      model.GuestID,
		DisplayName:  "Guest",
		CurrencyCode: currency,
		IsGuest:      true,
	})
}

// FinalizeGuestMigration hands the guest's categories and profile settings
// to toOwner and deletes the guest profile, all in one transaction. It does
// nothing and returns false while guest transactions remain.
func (s *Store) FinalizeGuestMigration(ctx context.Context, toOwner string) (bool, error) {
	if toOwner == "" || toOwner == model.GuestID {
		return false, fmt.Errorf("finalize guest migration: %w", model.ErrEmptyOwner)
	}

	var done bool
	err := s.InTx(ctx, func(q *Queries) error {
		remaining, err := q.CountTransactions(ctx, model.GuestID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		moved, merged, err := reassignCategories(ctx, q, model.GuestID, toOwner)
		if err != nil {
			return err
		}
		slog.DebugContext(ctx, "Guest categories handed over", "owner_id", toOwner, "moved", moved, "merged", merged)

		guest, err := q.GetProfile(ctx, model.GuestID)
		if err := classify(err); errors.Is(err, model.ErrNotFound) {
			done = true
			return nil
		} else if err != nil {
			return err
		}

		if err := seedProfile(ctx, q, guest, toOwner, s.timestamp()); err != nil {
			return err
		}
		if _, err := q.DeleteProfile(ctx, model.GuestID); err != nil {
			return err
		}
		done = true
		return nil
	})
	if err != nil {
		return false, wrap("finalize guest migration", err)
	}
	if done {
		s.invalidateCategories(model.GuestID, toOwner)
		slog.InfoContext(ctx, "Guest migration finalized", "owner_id", toOwner)
	}
	return done, nil
}

// seedProfile copies the guest's budget and currency into toOwner's profile
// when that profile does not exist yet or has no budget.
func seedProfile(ctx context.Context, q *Queries, guest model.Profile, toOwner string, now time.Time) error {
	p, err := q.GetProfile(ctx, toOwner)
	switch err := classify(err); {
	case errors.Is(err, model.ErrNotFound):
		p = model.Profile{
			OwnerID:       toOwner,
			MonthlyBudget: guest.MonthlyBudget,
			CurrencyCode:  guest.CurrencyCode,
			PhotoRef:      guest.PhotoRef,
		}
	case err != nil:
		return err
	case p.MonthlyBudget.IsPositive() || !guest.MonthlyBudget.IsPositive():
		return nil
	default:
		p.MonthlyBudget = guest.MonthlyBudget
		p.CurrencyCode = guest.CurrencyCode
	}
	_, err = saveProfile(ctx, q, p, now)
	return err
}
