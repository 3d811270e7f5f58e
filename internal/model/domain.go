package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GuestID is the owner id of the single shared anonymous actor.
const GuestID = "guest"

const (
	Outflow Kind = "expense"
	Inflow  Kind = "income"
)

const (
	LocalOnly SyncState = "local_only"
	Pending   SyncState = "pending"
	Synced    SyncState = "synced"
	Rejected  SyncState = "rejected"
)

type (
	Kind      string
	SyncState string

	// Transaction is a single ledger entry (an expense or an income).
	Transaction struct {
		ID         int64
		Amount     decimal.Decimal
		Category   string
		OccurredAt time.Time
		Notes      string
		Kind       Kind
		OwnerID    string

		SyncState     SyncState
		RemoteID      string
		SyncKey       string // remote document id, fixed at first commit
		Version       int64  // bumped on every local write
		SyncAttempts  int
		LastSyncError string

		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Category struct {
		ID        int64
		Name      string
		Icon      string
		ColorHex  string
		IsDefault bool
		OwnerID   string // empty for default categories
	}

	Profile struct {
		ID            int64
		OwnerID       string
		DisplayName   string
		Email         string
		MonthlyBudget decimal.Decimal
		CurrencyCode  string
		PhotoRef      string
		IsGuest       bool

		SyncState     SyncState
		Version       int64
		LastSyncError string

		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

// Error taxonomy shared by every layer.
var (
	ErrConstraintViolation = errors.New("constraint violation")
	ErrNotFound            = errors.New("not found")
	ErrStorageFatal        = errors.New("storage failure")
)

var (
	ErrNegativeAmount = fmt.Errorf("%w: amount must not be negative", ErrConstraintViolation)
	ErrEmptyCategory  = fmt.Errorf("%w: empty category", ErrConstraintViolation)
	ErrInvalidKind    = fmt.Errorf("%w: invalid transaction kind", ErrConstraintViolation)
	ErrEmptyOwner     = fmt.Errorf("%w: empty owner", ErrConstraintViolation)
	ErrZeroTime       = fmt.Errorf("%w: occurrence time cannot be zero", ErrConstraintViolation)
	ErrNotesTooLong   = fmt.Errorf("%w: notes too long (max 500 characters)", ErrConstraintViolation)
)

func (k Kind) Valid() bool {
	return k == Outflow || k == Inflow
}

func (s SyncState) Valid() bool {
	switch s {
	case LocalOnly, Pending, Synced, Rejected:
		return true
	}
	return false
}

// IsUnsynced reports whether the record still owes the remote a push.
func (s SyncState) IsUnsynced() bool {
	return s == Pending
}

// InitialSyncState is the state a freshly written record starts in for its owner.
func InitialSyncState(ownerID string) SyncState {
	if ownerID == GuestID {
		return LocalOnly
	}
	return Pending
}

// NormalizeTime truncates instants to the millisecond precision the store persists.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}

func (t Transaction) Validate() error {
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if t.OccurredAt.IsZero() {
		return ErrZeroTime
	}
	if len(t.Notes) > 500 {
		return ErrNotesTooLong
	}
	return nil
}

// IsGuestOwned reports whether the record belongs to the guest actor.
func (t Transaction) IsGuestOwned() bool {
	return t.OwnerID == GuestID
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategory
	}
	if c.IsDefault && c.OwnerID != "" {
		return fmt.Errorf("%w: default category cannot have an owner", ErrConstraintViolation)
	}
	if !c.IsDefault && strings.TrimSpace(c.OwnerID) == "" {
		return fmt.Errorf("%w: custom category needs an owner", ErrConstraintViolation)
	}
	if c.ColorHex != "" && !isHexColor(c.ColorHex) {
		return fmt.Errorf("%w: invalid color %q", ErrConstraintViolation, c.ColorHex)
	}
	return nil
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if p.MonthlyBudget.IsNegative() {
		return fmt.Errorf("%w: monthly budget must not be negative", ErrConstraintViolation)
	}
	if p.IsGuest != (p.OwnerID == GuestID) {
		return fmt.Errorf("%w: only the guest owner may hold the guest profile", ErrConstraintViolation)
	}
	if err := ValidateCurrency(p.CurrencyCode); err != nil {
		return err
	}
	return nil
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
