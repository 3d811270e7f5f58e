package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/identity"
	"ledger/internal/log"
	"ledger/internal/model"
	"ledger/internal/storage"
	"ledger/internal/worker"
)

// TransactionInput holds the fields a caller may set on a ledger entry.
type TransactionInput struct {
	Amount     decimal.Decimal
	Category   string
	OccurredAt time.Time
	Notes      string
	Kind       model.Kind
}

// ProfileUpdate changes the non-nil fields of the current profile.
type ProfileUpdate struct {
	DisplayName  *string
	CurrencyCode *string
	PhotoRef     *string
}

// Ledger is the collaborator-facing API. Every read and write is scoped to
// the current actor; writes commit locally and hand remote work to the
// coordinator, returning a handle when a push was scheduled.
type Ledger struct {
	store       *storage.Store
	coordinator *Coordinator
	identity    *identity.Context
	currency    string
	logger      *log.Logger
}

func NewLedger(store *storage.Store, coordinator *Coordinator, ident *identity.Context, defaultCurrency string, logger *log.Logger) *Ledger {
	if defaultCurrency == "" {
		defaultCurrency = model.DefaultCurrency
	}
	if logger == nil {
		logger = log.Default(log.ComponentLedger)
	}
	return &Ledger{
		store:       store,
		coordinator: coordinator,
		identity:    ident,
		currency:    strings.ToUpper(defaultCurrency),
		logger:      logger,
	}
}

// Bootstrap prepares the local store for first use.
func (l *Ledger) Bootstrap(ctx context.Context) error {
	if _, err := l.store.EnsureGuestProfile(ctx, l.currency); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}

// Ping checks that the local store answers.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

func (l *Ledger) CurrentActor() identity.Actor {
	return l.identity.Current()
}

func (l *Ledger) owner() string {
	return l.identity.Current().ID()
}

func (l *Ledger) CreateTransaction(ctx context.Context, in TransactionInput) (model.Transaction, *worker.Handle, error) {
	t, err := l.store.InsertTransaction(ctx, model.Transaction{
		Amount:     in.Amount,
		Category:   strings.TrimSpace(in.Category),
		OccurredAt: in.OccurredAt,
		Notes:      strings.TrimSpace(in.Notes),
		Kind:       in.Kind,
		OwnerID:    l.owner(),
	})
	if err != nil {
		return model.Transaction{}, nil, fmt.Errorf("create transaction: %w", err)
	}

	l.logger.InfoContext(ctx, "Transaction created",
		log.FieldTransactionID, t.ID,
		log.FieldOwnerID, t.OwnerID,
		log.FieldKind, t.Kind,
		log.FieldAmount, t.Amount.String(),
		log.FieldCategory, t.Category)
	return t, l.coordinator.PushTransaction(t), nil
}

func (l *Ledger) UpdateTransaction(ctx context.Context, id int64, in TransactionInput) (model.Transaction, *worker.Handle, error) {
	t, err := l.store.UpdateTransaction(ctx, model.Transaction{
		ID:         id,
		Amount:     in.Amount,
		Category:   strings.TrimSpace(in.Category),
		OccurredAt: in.OccurredAt,
		Notes:      strings.TrimSpace(in.Notes),
		Kind:       in.Kind,
		OwnerID:    l.owner(),
	})
	if err != nil {
		return model.Transaction{}, nil, fmt.Errorf("update transaction %d: %w", id, err)
	}

	l.logger.InfoContext(ctx, "Transaction updated",
		log.FieldTransactionID, t.ID,
		log.FieldVersion, t.Version,
		log.FieldSyncState, t.SyncState)
	return t, l.coordinator.PushTransaction(t), nil
}

// DeleteTransaction removes the record locally; for an authenticated owner
// the remote copy is removed asynchronously.
func (l *Ledger) DeleteTransaction(ctx context.Context, id int64) (*worker.Handle, error) {
	t, err := l.store.DeleteTransaction(ctx, l.owner(), id)
	if err != nil {
		return nil, fmt.Errorf("delete transaction %d: %w", id, err)
	}
	l.logger.InfoContext(ctx, "Transaction deleted", log.FieldTransactionID, id, log.FieldOwnerID, t.OwnerID)
	return l.coordinator.DeleteRemote(t), nil
}

func (l *Ledger) GetTransaction(ctx context.Context, id int64) (model.Transaction, error) {
	t, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	if t.OwnerID != l.owner() {
		return model.Transaction{}, fmt.Errorf("get transaction %d: %w", id, model.ErrNotFound)
	}
	return t, nil
}

// QueryTransactions lists the actor's records matching f, newest first.
// f.OwnerID is ignored.
func (l *Ledger) QueryTransactions(ctx context.Context, f storage.Filter) ([]model.Transaction, error) {
	f.OwnerID = l.owner()
	return l.store.QueryTransactions(ctx, f)
}

// Observe streams snapshots of the actor's records matching f until ctx ends
// or the subscription is closed.
func (l *Ledger) Observe(ctx context.Context, f storage.Filter) (*storage.Subscription, error) {
	f.OwnerID = l.owner()
	return l.store.Observe(ctx, f)
}

func (l *Ledger) Totals(ctx context.Context, kind model.Kind, from, to time.Time) (decimal.Decimal, error) {
	return l.store.AggregateSum(ctx, l.owner(), kind, from, to)
}

func (l *Ledger) CategoryTotals(ctx context.Context, kind model.Kind, from, to time.Time) ([]model.CategoryAmount, error) {
	return l.store.SumByCategory(ctx, l.owner(), kind, from, to)
}

// Summary reports income, expense, balance and budget usage for the range.
func (l *Ledger) Summary(ctx context.Context, from, to time.Time) (model.Summary, error) {
	owner := l.owner()
	income, err := l.store.AggregateSum(ctx, owner, model.Inflow, from, to)
	if err != nil {
		return model.Summary{}, fmt.Errorf("summary: %w", err)
	}
	expense, err := l.store.AggregateSum(ctx, owner, model.Outflow, from, to)
	if err != nil {
		return model.Summary{}, fmt.Errorf("summary: %w", err)
	}

	budget := decimal.Zero
	p, err := l.store.GetProfile(ctx, owner)
	switch {
	case err == nil:
		budget = p.MonthlyBudget
	case !errors.Is(err, model.ErrNotFound):
		return model.Summary{}, fmt.Errorf("summary: %w", err)
	}

	s := model.NewSummary(from, to, income, expense, budget)
	if s.ByCategory, err = l.store.SumByCategory(ctx, owner, model.Outflow, from, to); err != nil {
		return model.Summary{}, fmt.Errorf("summary: %w", err)
	}
	return s, nil
}

func (l *Ledger) Categories(ctx context.Context) ([]model.Category, error) {
	return l.store.ListCategories(ctx, l.owner())
}

func (l *Ledger) CreateCategory(ctx context.Context, name, icon, colorHex string) (model.Category, error) {
	if icon == "" {
		icon = model.CustomCategoryIcon
	}
	if colorHex == "" {
		colorHex = model.CustomCategoryColor
	}
	return l.store.CreateCategory(ctx, model.Category{
		Name:     strings.TrimSpace(name),
		Icon:     icon,
		ColorHex: colorHex,
		OwnerID:  l.owner(),
	})
}

// Currency is the current actor's profile currency, or the configured
// default when the actor has no profile yet.
func (l *Ledger) Currency(ctx context.Context) string {
	p, err := l.store.GetProfile(ctx, l.owner())
	if err != nil || p.CurrencyCode == "" {
		return l.currency
	}
	return p.CurrencyCode
}

func (l *Ledger) GetProfile(ctx context.Context) (model.Profile, error) {
	return l.store.GetProfile(ctx, l.owner())
}

func (l *Ledger) UpdateBudget(ctx context.Context, budget decimal.Decimal) (model.Profile, *worker.Handle, error) {
	p, err := l.store.UpdateBudget(ctx, l.owner(), budget)
	if err != nil {
		return model.Profile{}, nil, err
	}
	l.logger.InfoContext(ctx, "Budget updated", log.FieldOwnerID, p.OwnerID, log.FieldAmount, p.MonthlyBudget.String())
	return p, l.coordinator.PushProfile(p.OwnerID), nil
}

func (l *Ledger) UpdateProfile(ctx context.Context, upd ProfileUpdate) (model.Profile, *worker.Handle, error) {
	owner := l.owner()
	p, err := l.store.EditProfile(ctx, owner, l.currency, func(p *model.Profile) {
		if upd.DisplayName != nil {
			p.DisplayName = strings.TrimSpace(*upd.DisplayName)
		}
		if upd.CurrencyCode != nil {
			p.CurrencyCode = *upd.CurrencyCode
		}
		if upd.PhotoRef != nil {
			p.PhotoRef = strings.TrimSpace(*upd.PhotoRef)
		}
	})
	if err != nil {
		return model.Profile{}, nil, fmt.Errorf("update profile: %w", err)
	}
	return p, l.coordinator.PushProfile(owner), nil
}

// SignIn authenticates userID and records the account details on its
// profile. Guest data migration and sync follow asynchronously.
func (l *Ledger) SignIn(ctx context.Context, userID, email, displayName string) (identity.Change, error) {
	userID = strings.TrimSpace(userID)
	if err := identity.ValidateUserID(userID); err != nil {
		return identity.Change{}, err
	}
	cur := l.identity.Current()
	if !cur.IsGuest() && cur.ID() != userID {
		return identity.Change{From: cur, To: cur}, identity.ErrSwitchWithoutSignOut
	}

	_, err := l.store.EditProfile(ctx, userID, l.currency, func(p *model.Profile) {
		if email = strings.TrimSpace(email); email != "" {
			p.Email = email
		}
		if displayName = strings.TrimSpace(displayName); displayName != "" {
			p.DisplayName = displayName
		}
	})
	if err != nil {
		return identity.Change{}, fmt.Errorf("sign in: %w", err)
	}

	change, err := l.identity.SignIn(userID)
	if err != nil {
		return change, err
	}
	l.logger.InfoContext(ctx, "Signed in", log.FieldOwnerID, userID, "changed", change.Changed())
	return change, nil
}

// SignOut returns to the guest. The user's local records stay on disk.
func (l *Ledger) SignOut(ctx context.Context) (identity.Change, error) {
	change := l.identity.SignOut()
	if _, err := l.store.EnsureGuestProfile(ctx, l.currency); err != nil {
		return change, fmt.Errorf("sign out: %w", err)
	}
	l.logger.InfoContext(ctx, "Signed out", "from", change.From.String())
	return change, nil
}

func (l *Ledger) MigrateGuestData(ctx context.Context) (MigrationReport, error) {
	return l.coordinator.MigrateGuestData(ctx)
}

func (l *Ledger) SyncNow(ctx context.Context, reason string) (SyncReport, error) {
	return l.coordinator.SyncNow(ctx, reason)
}

func (l *Ledger) RetryRejected(ctx context.Context) (SyncReport, error) {
	return l.coordinator.RetryRejected(ctx)
}
