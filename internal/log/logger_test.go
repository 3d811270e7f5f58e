package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Component: ComponentLedger, Output: &buf}), &buf
}

func TestLoggerStampsComponent(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelInfo)
	l.Info("hello", FieldOwnerID, "u1")
	l.WithComponent(ComponentWorker).WarnContext(context.Background(), "slow")
	l.Debug("hidden")

	out := buf.String()
	for _, want := range []string{"component=ledger", "owner_id=u1", "component=worker", "msg=slow"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level")
	}
}

func TestFromContext(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelInfo)

	var got *Logger
	h := RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
		}))
	Middleware(l)(h).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil {
		t.Fatal("no logger in context")
	}
	got.Info("inside")
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Errorf("request id missing from %q", buf.String())
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Errorf("fallback logger has wrong component")
	}
}

func TestStructuredLogger(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelDebug)
	sl := NewStructuredLogger(l)

	sl.LogPush(context.Background(), 7, "u1", "k1", 2, errors.New("offline"))
	sl.LogHTTPEnd(context.Background(), httptest.NewRequest(http.MethodGet, "/v1/summary", nil), 503, 12, "127.0.0.1")
	sl.LogError(context.Background(), "boom", errors.New("x"), ComponentStorage, OpCreate, nil)

	out := buf.String()
	for _, want := range []string{"transaction_id=7", "error=offline", "level=ERROR", "status_code=503", "operation=create"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
