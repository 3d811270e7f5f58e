package http

import (
	"net/http"
	"time"

	"ledger/internal/identity"
	"ledger/internal/model"
	"ledger/internal/services"
	"ledger/internal/worker"
)

// Amounts travel as decimal strings ("12.50") so no precision is lost.

type transactionJSON struct {
	ID         int64     `json:"id"`
	Amount     string    `json:"amount"`
	Category   string    `json:"category"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Notes      string    `json:"notes,omitempty"`
	SyncState  string    `json:"sync_state"`
	RemoteID   string    `json:"remote_id,omitempty"`
	Version    int64     `json:"version"`
	SyncError  string    `json:"sync_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toTransactionJSON(t model.Transaction) transactionJSON {
	return transactionJSON{
		ID:         t.ID,
		Amount:     t.Amount.StringFixed(2),
		Category:   t.Category,
		Kind:       string(t.Kind),
		OccurredAt: t.OccurredAt,
		Notes:      t.Notes,
		SyncState:  string(t.SyncState),
		RemoteID:   t.RemoteID,
		Version:    t.Version,
		SyncError:  t.LastSyncError,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func toTransactionList(txs []model.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	return out
}

// transactionRequest is the body of POST and PUT /v1/transactions.
type transactionRequest struct {
	Amount     string `json:"amount"`
	Category   string `json:"category"`
	Kind       string `json:"kind"`
	OccurredAt string `json:"occurred_at"`
	Notes      string `json:"notes"`
}

// toInput validates the request shape. Entity rules are left to the store.
func (req transactionRequest) toInput(now time.Time, loc *time.Location) (services.TransactionInput, error) {
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		return services.TransactionInput{}, err
	}
	occurred := now
	if req.OccurredAt != "" {
		if occurred, err = ParseTime(req.OccurredAt, loc); err != nil {
			return services.TransactionInput{}, err
		}
	}
	kind := model.Outflow
	if req.Kind != "" {
		kind = model.Kind(req.Kind)
	}
	return services.TransactionInput{
		Amount:     amount,
		Category:   sanitizeInput(req.Category),
		OccurredAt: occurred,
		Notes:      sanitizeInput(req.Notes),
		Kind:       kind,
	}, nil
}

type categoryJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	ColorHex  string `json:"color"`
	IsDefault bool   `json:"is_default"`
}

func toCategoryJSON(c model.Category) categoryJSON {
	return categoryJSON{ID: c.ID, Name: c.Name, Icon: c.Icon, ColorHex: c.ColorHex, IsDefault: c.IsDefault}
}

type profileJSON struct {
	OwnerID       string    `json:"owner_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	Email         string    `json:"email,omitempty"`
	MonthlyBudget string    `json:"monthly_budget"`
	CurrencyCode  string    `json:"currency"`
	PhotoRef      string    `json:"photo_ref,omitempty"`
	IsGuest       bool      `json:"is_guest"`
	SyncState     string    `json:"sync_state"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toProfileJSON(p model.Profile) profileJSON {
	return profileJSON{
		OwnerID:       p.OwnerID,
		DisplayName:   p.DisplayName,
		Email:         p.Email,
		MonthlyBudget: p.MonthlyBudget.StringFixed(2),
		CurrencyCode:  p.CurrencyCode,
		PhotoRef:      p.PhotoRef,
		IsGuest:       p.IsGuest,
		SyncState:     string(p.SyncState),
		UpdatedAt:     p.UpdatedAt,
	}
}

type categoryAmountJSON struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type summaryJSON struct {
	From         time.Time            `json:"from"`
	To           time.Time            `json:"to"`
	Currency     string               `json:"currency"`
	Income       string               `json:"income"`
	Expense      string               `json:"expense"`
	Balance      string               `json:"balance"`
	Budget       string               `json:"budget"`
	BudgetUsage  string               `json:"budget_usage"`
	BudgetStatus string               `json:"budget_status"`
	ByCategory   []categoryAmountJSON `json:"by_category"`
}

func toSummaryJSON(s model.Summary, currency string) summaryJSON {
	out := summaryJSON{
		From:         s.From,
		To:           s.To,
		Currency:     currency,
		Income:       s.Income.StringFixed(2),
		Expense:      s.Expense.StringFixed(2),
		Balance:      s.Balance.StringFixed(2),
		Budget:       s.Budget.StringFixed(2),
		BudgetUsage:  s.BudgetUsage.StringFixed(4),
		BudgetStatus: string(s.BudgetStatus),
		ByCategory:   toCategoryAmounts(s.ByCategory),
	}
	return out
}

func toCategoryAmounts(in []model.CategoryAmount) []categoryAmountJSON {
	out := make([]categoryAmountJSON, 0, len(in))
	for _, c := range in {
		out = append(out, categoryAmountJSON{Name: c.Name, Amount: c.Amount.StringFixed(2)})
	}
	return out
}

type sessionJSON struct {
	Actor         string `json:"actor"`
	UserID        string `json:"user_id,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

func toSessionJSON(a identity.Actor) sessionJSON {
	s := sessionJSON{Actor: a.String(), Authenticated: !a.IsGuest()}
	if s.Authenticated {
		s.UserID = a.ID()
	}
	return s
}

// pushJSON tells the client whether a remote push was scheduled for a write.
type pushJSON struct {
	Scheduled bool `json:"push_scheduled"`
}

func pushOf(h *worker.Handle) pushJSON {
	return pushJSON{Scheduled: h != nil}
}

// mutationStatus is 202 when remote work was scheduled, otherwise ok.
func mutationStatus(h *worker.Handle, ok int) int {
	if h != nil {
		return http.StatusAccepted
	}
	return ok
}

type transactionResult struct {
	transactionJSON
	pushJSON
}

type profileResult struct {
	profileJSON
	pushJSON
}
