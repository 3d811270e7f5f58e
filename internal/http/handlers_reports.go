package http

import (
	"bytes"
	"fmt"
	"net/http"

	"ledger/internal/export"
	"ledger/internal/log"
)

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	kind, err := ParseKind(query)
	if err == nil {
		err = requireKind(kind)
	}
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	from, to, err := ParseRange(query, s.now(), s.location)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx := r.Context()
	total, err := s.ledger.Totals(ctx, kind, from, to)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	byCategory, err := s.ledger.CategoryTotals(ctx, kind, from, to)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(map[string]any{
		"kind":        string(kind),
		"from":        from,
		"to":          to,
		"currency":    s.ledger.Currency(ctx),
		"total":       total.StringFixed(2),
		"by_category": toCategoryAmounts(byCategory),
	}).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := ParseRange(r.URL.Query(), s.now(), s.location)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	summary, err := s.ledger.Summary(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(toSummaryJSON(summary, s.ledger.Currency(r.Context()))).Write(w)
}

// handleExportCSV downloads the filtered transactions as CSV. The body is
// rendered in memory first so a failure can still produce an error status.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
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

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, txs, s.location); err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	name := export.FileName("expenses", "csv", s.now().In(s.location))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleReport renders the plain text report for a period.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := ParseRange(r.URL.Query(), s.now(), s.location)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ctx := r.Context()
	summary, err := s.ledger.Summary(ctx, from, to)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	txs, err := s.ledger.QueryTransactions(ctx, filterRange(from, to))
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}

	var buf bytes.Buffer
	err = export.WriteReport(&buf, export.Report{
		Generated:    s.now(),
		Currency:     s.ledger.Currency(ctx),
		Income:       summary.Income,
		Expense:      summary.Expense,
		Transactions: txs,
		Location:     s.location,
	})
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
