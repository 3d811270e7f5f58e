package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"

	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/model"
	"ledger/internal/services"
	"ledger/internal/storage"
	"ledger/internal/worker"
)

// as a CLI application, it has a very short lived lifecycle, so global flags are fine.

var (
	userID    = flag.String("user", "", "Sign in as this user id before running the command (default: guest)")
	userEmail = flag.String("email", "", "Email recorded on the profile when signing in")
	plain     = flag.Bool("plain", false, "Print raw markdown instead of rendering it for the terminal")
)

// env is what a command needs to act on the ledger.
type env struct {
	*cli.App
	cfg    *config.Config
	logger *log.Logger
}

// usageError makes run exit with subcommands.ExitUsageError.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// loadConfig reads .env and the environment. Logs go to stderr so that
// command output can be piped.
func loadConfig() (*config.Config, *log.Logger, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := log.New(log.Config{
		Level:     cfg.SlogLevel(),
		Component: log.ComponentCLI,
		Output:    os.Stderr,
	})
	log.SetDefault(logger)
	return cfg, logger, nil
}

// run opens the ledger, signs in when -user is set, and runs fn. Pending
// pushes are drained before returning.
func run(ctx context.Context, fn func(context.Context, *env) error) subcommands.ExitStatus {
	cfg, logger, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger %q: %v\n", cfg.DBPath, err)
		return subcommands.ExitFailure
	}
	app, err := cli.NewApp(ctx, cfg, logger, store)
	if err != nil {
		store.Close()
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	defer func() {
		if err := app.Close(cfg.RemoteTimeout); err != nil {
			logger.Warn("Close failed", "error", err)
		}
	}()

	if *userID != "" {
		report, err := signIn(ctx, app.Ledger, *userID, *userEmail)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error signing in:", err)
			return subcommands.ExitFailure
		}
		if report != nil && (report.Migrated > 0 || report.Failed > 0) {
			logger.Info("Guest data migrated",
				"migrated", report.Migrated,
				"failed", report.Failed,
				"remaining", report.Remaining)
		}
	}

	if err := fn(ctx, &env{App: app, cfg: cfg, logger: logger}); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ue usageError
		if errors.As(err, &ue) {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// signIn switches the ledger to user. On a guest to user transition the
// guest's records move to user first, the same way the server does it; the
// report is nil when no transition happened. Records that fail to upload stay
// with the guest and do not fail the sign-in.
func signIn(ctx context.Context, l *services.Ledger, user, email string) (*services.MigrationReport, error) {
	change, err := l.SignIn(ctx, user, email, "")
	if err != nil {
		return nil, err
	}
	if !change.SignedIn() {
		return nil, nil
	}
	report, err := l.MigrateGuestData(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate guest data: %w", err)
	}
	return &report, nil
}

// waitPush waits for a scheduled push and returns the record's sync state.
// A nil handle means the actor is the guest and nothing leaves the device.
func (e *env) waitPush(ctx context.Context, h *worker.Handle) model.SyncState {
	if h == nil {
		return model.LocalOnly
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
	defer cancel()
	res, err := h.Wait(ctx)
	if err != nil {
		return model.Pending
	}
	if res.Err != nil {
		e.logger.Warn("Push failed", "error", res.Err, log.FieldSyncState, res.State)
	}
	return res.State
}

// printMarkdown renders md for the terminal, or prints it as is with -plain.
func printMarkdown(md string) {
	if *plain {
		fmt.Print(md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

const dateLayout = "2006-01-02"

// parseDate reads a YYYY-MM-DD date in the local zone; empty means today.
func parseDate(s string, now time.Time) (time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		return now, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, now.Location())
	if err != nil {
		return time.Time{}, usagef("invalid date %q: use YYYY-MM-DD", s)
	}
	return t, nil
}

// parseMonth returns the inclusive range of a YYYY-MM month; empty means
// the month of now.
func parseMonth(s string, now time.Time) (time.Time, time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		from, to := model.MonthRange(now, now.Location())
		return from, to, nil
	}
	t, err := time.ParseInLocation("2006-01", s, now.Location())
	if err != nil {
		return time.Time{}, time.Time{}, usagef("invalid month %q: use YYYY-MM", s)
	}
	from, to := model.MonthRange(t, now.Location())
	return from, to, nil
}

// parseRange resolves -s/-e day bounds, falling back to the month flag.
func parseRange(start, end, month string, now time.Time) (time.Time, time.Time, error) {
	if start == "" && end == "" {
		return parseMonth(month, now)
	}
	from, err := parseDate(start, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start == "" {
		from = time.Time{}
	}
	to, err := parseDate(end, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end != "" {
		to = to.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	if !from.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, usagef("end date %s is before start date %s", end, start)
	}
	return from, to, nil
}

func parseKind(s string) (model.Kind, error) {
	k := model.Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", usagef("invalid kind %q: use expense or income", s)
	}
	return k, nil
}
