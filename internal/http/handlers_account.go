package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"ledger/internal/log"
	"ledger/internal/model"
	"ledger/internal/services"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.ledger.Categories(r.Context())
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	out := make([]categoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryJSON(c))
	}
	NewJSONResponse().Data(map[string]any{"categories": out}).Write(w)
}

type categoryRequest struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	c, err := s.ledger.CreateCategory(r.Context(), sanitizeInput(req.Name), sanitizeInput(req.Icon), sanitizeInput(req.Color))
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	Created(toCategoryJSON(c)).Write(w)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.GetProfile(r.Context())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(toProfileJSON(p)).Write(w)
}

type profileRequest struct {
	DisplayName *string `json:"display_name"`
	Currency    *string `json:"currency"`
	PhotoRef    *string `json:"photo_ref"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if req.Currency != nil {
		if err := model.ValidateCurrency(*req.Currency); err != nil {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
	}
	p, push, err := s.ledger.UpdateProfile(r.Context(), services.ProfileUpdate{
		DisplayName:  req.DisplayName,
		CurrencyCode: req.Currency,
		PhotoRef:     req.PhotoRef,
	})
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().
		Status(mutationStatus(push, http.StatusOK)).
		Data(profileResult{toProfileJSON(p), pushOf(push)}).
		Write(w)
}

type budgetRequest struct {
	MonthlyBudget string `json:"monthly_budget"`
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	budget, err := model.ParseAmount(req.MonthlyBudget)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	p, push, err := s.ledger.UpdateBudget(r.Context(), budget)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().
		Status(mutationStatus(push, http.StatusOK)).
		Data(profileResult{toProfileJSON(p), pushOf(push)}).
		Write(w)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(toSessionJSON(s.ledger.CurrentActor())).Write(w)
}

type signInRequest struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// handleSignIn opens a session. Guest migration and the first sync run in
// the background once the identity change is observed.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	change, err := s.ledger.SignIn(r.Context(), sanitizeInput(req.UserID), sanitizeInput(req.Email), sanitizeInput(req.DisplayName))
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	status := http.StatusOK
	if change.Changed() {
		status = http.StatusCreated
	}
	NewJSONResponse().Status(status).Data(toSessionJSON(change.To)).Write(w)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	change, err := s.ledger.SignOut(r.Context())
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(toSessionJSON(change.To)).Write(w)
}

type syncRequest struct {
	Reason string `json:"reason"`
}

type syncResponse struct {
	Reason       string         `json:"reason"`
	Transactions int            `json:"transactions"`
	Profile      bool           `json:"profile"`
	States       map[string]int `json:"states,omitempty"`
}

// handleSync schedules a push of every unsynced record. With ?wait=true the
// response is held until the pushes resolve or the request ends.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	req := syncRequest{Reason: "api"}
	if r.ContentLength != 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
	}
	if req.Reason = sanitizeInput(req.Reason); req.Reason == "" {
		req.Reason = "api"
	}
	s.respondSync(w, r, func(ctx context.Context) (services.SyncReport, error) {
		return s.ledger.SyncNow(ctx, req.Reason)
	})
}

func (s *Server) handleRetryRejected(w http.ResponseWriter, r *http.Request) {
	s.respondSync(w, r, s.ledger.RetryRejected)
}

func (s *Server) respondSync(w http.ResponseWriter, r *http.Request, run func(context.Context) (services.SyncReport, error)) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	report, err := run(r.Context())
	if err != nil {
		s.fail(w, r, log.OpSync, err)
		return
	}
	resp := syncResponse{
		Reason:       report.Reason,
		Transactions: report.Transactions,
		Profile:      report.Profile,
	}
	if !wait {
		Accepted(resp).Write(w)
		return
	}

	states, err := report.Wait(r.Context())
	if err != nil {
		ErrorResponse(http.StatusGatewayTimeout, "timeout", "sync still running").Write(w)
		return
	}
	resp.States = make(map[string]int, len(states))
	for state, n := range states {
		resp.States[string(state)] = n
	}
	NewJSONResponse().Data(resp).Write(w)
}

type migrationResponse struct {
	Migrated  int  `json:"migrated"`
	Failed    int  `json:"failed"`
	Remaining int  `json:"remaining"`
	Completed bool `json:"completed"`
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.MigrateGuestData(r.Context())
	if err != nil && !errors.Is(err, context.Canceled) {
		s.fail(w, r, log.OpMigrate, err)
		return
	}
	NewJSONResponse().Data(migrationResponse{
		Migrated:  report.Migrated,
		Failed:    report.Failed,
		Remaining: report.Remaining,
		Completed: report.Completed,
	}).Write(w)
}
