// Package http serves the ledger as a JSON API. Every request acts as the
// current actor of the process: the guest until a session is opened.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// readyTimeout bounds the dependency checks of /readyz.
const readyTimeout = 5 * time.Second

type Server struct {
	http.Server
	ledger   *services.Ledger
	logger   *log.Logger
	location *time.Location
	now      func() time.Time
	started  time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// Option customises a Server.
type Option func(*Server)

// WithLocation sets the zone used for calendar dates and month ranges.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithRateLimit overrides the limit applied to mutating requests.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		s.limiter.Stop()
		s.limiter = ratelimit.NewLimiter(cfg)
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, ledger *services.Ledger, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		ledger:   ledger,
		logger:   logger,
		location: time.UTC,
		now:      time.Now,
		started:  time.Now(),
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector: security.NewDetector(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /v1/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /v1/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /v1/transactions/watch", s.handleWatchTransactions)
	mux.HandleFunc("GET /v1/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /v1/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /v1/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /v1/totals", s.handleTotals)
	mux.HandleFunc("GET /v1/summary", s.handleSummary)
	mux.HandleFunc("GET /v1/export.csv", s.handleExportCSV)
	mux.HandleFunc("GET /v1/report.txt", s.handleReport)

	mux.HandleFunc("GET /v1/categories", s.handleListCategories)
	mux.HandleFunc("POST /v1/categories", s.handleCreateCategory)

	mux.HandleFunc("GET /v1/profile", s.handleGetProfile)
	mux.HandleFunc("PUT /v1/profile", s.handleUpdateProfile)
	mux.HandleFunc("PUT /v1/profile/budget", s.handleUpdateBudget)

	mux.HandleFunc("GET /v1/session", s.handleGetSession)
	mux.HandleFunc("POST /v1/session", s.handleSignIn)
	mux.HandleFunc("DELETE /v1/session", s.handleSignOut)

	mux.HandleFunc("POST /v1/sync", s.handleSync)
	mux.HandleFunc("POST /v1/sync/retry", s.handleRetryRejected)
	mux.HandleFunc("POST /v1/migrate", s.handleMigrate)

	s.Handler = s.middleware(mux)
	return s
}

// middleware wraps next, outermost first: tracing, request logger,
// security headers, probe detection, then rate limiting of mutations.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(next)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.RequestIDMiddleware(trace.FromRequest)(h)
	h = log.Middleware(s.logger)(h)
	return s.tracer.Middleware(h)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{"storage": "ok"}
	status, code := "ready", http.StatusOK
	if err := s.ledger.Ping(ctx); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["storage"] = "unavailable"
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	NewJSONResponse().Status(code).Data(map[string]any{
		"status": status,
		"checks": checks,
	}).Write(w)
}

// fail writes the mapped error response, logging server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrorFor(err)
	if resp.statusCode >= http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, nil)
	}
	resp.Write(w)
}
