package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ledger/internal/log"
	"ledger/internal/model"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query(), s.location)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	txs, err := s.ledger.QueryTransactions(r.Context(), f)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(map[string]any{
		"transactions": toTransactionList(txs),
		"count":        len(txs),
	}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in, err := req.toInput(s.now(), s.location)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	t, push, err := s.ledger.CreateTransaction(r.Context(), in)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created",
		log.FieldTransactionID, t.ID,
		log.FieldKind, string(t.Kind),
		log.FieldAmount, t.Amount.String(),
		log.FieldCategory, t.Category,
		log.FieldSyncState, string(t.SyncState))

	Created(transactionResult{toTransactionJSON(t), pushOf(push)}).
		Header("Location", fmt.Sprintf("/v1/transactions/%d", t.ID)).
		Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	t, err := s.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(toTransactionJSON(t)).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req transactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in, err := req.toInput(s.now(), s.location)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	t, push, err := s.ledger.UpdateTransaction(r.Context(), id, in)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().
		Status(mutationStatus(push, http.StatusOK)).
		Data(transactionResult{toTransactionJSON(t), pushOf(push)}).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	push, err := s.ledger.DeleteTransaction(r.Context(), id)
	if err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	if push == nil {
		NoContent().Write(w)
		return
	}
	Accepted(pushOf(push)).Write(w)
}

// handleWatchTransactions streams snapshots of the filtered list as
// server-sent events until the client goes away.
func (s *Server) handleWatchTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query(), s.location)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx := r.Context()
	sub, err := s.ledger.Observe(ctx, f)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// The server write timeout would cut long-lived streams.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(toTransactionList(snapshot))
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// requireKind rejects a missing or unknown kind.
func requireKind(k model.Kind) error {
	if !k.Valid() {
		return fmt.Errorf("kind must be %q or %q", model.Outflow, model.Inflow)
	}
	return nil
}
