package main

import (
	"context"
	"errors"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/posener/complete/v2/predict"
	"github.com/shopspring/decimal"

	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/model"
	"ledger/internal/services"
	"ledger/internal/storage"
)

var now = time.Date(2025, 4, 15, 10, 30, 0, 0, time.UTC)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name             string
		start, end, mon  string
		wantFrom, wantTo time.Time
		wantUsage        bool
	}{
		{
			name:     "defaults to current month",
			wantFrom: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2025, 4, 30, 23, 59, 59, 999e6, time.UTC),
		},
		{
			name:     "explicit month",
			mon:      "2024-02",
			wantFrom: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 2, 29, 23, 59, 59, 999e6, time.UTC),
		},
		{
			name:     "start and end days are inclusive",
			start:    "2025-01-10",
			end:      "2025-01-12",
			wantFrom: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2025, 1, 12, 23, 59, 59, 999e6, time.UTC),
		},
		{
			name:   "end only is open at the start",
			end:    "2025-01-12",
			wantTo: time.Date(2025, 1, 12, 23, 59, 59, 999e6, time.UTC),
		},
		{
			name:      "end before start",
			start:     "2025-02-01",
			end:       "2025-01-01",
			wantUsage: true,
		},
		{
			name:      "bad month",
			mon:       "April",
			wantUsage: true,
		},
		{
			name:      "bad date",
			start:     "15/04/2025",
			wantUsage: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := parseRange(tt.start, tt.end, tt.mon, now)
			if tt.wantUsage {
				var ue usageError
				if !errors.As(err, &ue) {
					t.Fatalf("err = %v, want usage error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRange: %v", err)
			}
			if !from.Equal(tt.wantFrom) || !to.Equal(tt.wantTo) {
				t.Errorf("got [%v, %v], want [%v, %v]", from, to, tt.wantFrom, tt.wantTo)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]model.Kind{"expense": model.Outflow, " Income ": model.Inflow} {
		got, err := parseKind(in)
		if err != nil || got != want {
			t.Errorf("parseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := parseKind("transfer"); err == nil {
		t.Error("parseKind accepted an unknown kind")
	}
}

func TestTransactionsMarkdown(t *testing.T) {
	txs := []model.Transaction{
		{ID: 2, Amount: decimal.RequireFromString("12.5"), Category: "Food", Kind: model.Outflow,
			OccurredAt: now, SyncState: model.Synced, Notes: "lunch | team\nFriday"},
		{ID: 1, Amount: decimal.NewFromInt(2500), Category: "Salary", Kind: model.Inflow,
			OccurredAt: now.AddDate(0, 0, -14), SyncState: model.Pending},
	}
	md := transactionsMarkdown(txs, "USD", time.UTC)

	for _, want := range []string{
		"| 2 | 2025-04-15 | Food | -$12.50 | synced | lunch \\| team Friday |",
		"| 1 | 2025-04-01 | Salary | +$2,500.00 | pending |  |",
		"2 transaction(s)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	if md := transactionsMarkdown(nil, "USD", time.UTC); !strings.Contains(md, "No transactions.") {
		t.Errorf("empty markdown = %q", md)
	}
}

func TestSummaryMarkdown(t *testing.T) {
	from, to := model.MonthRange(now, time.UTC)
	s := model.NewSummary(from, to, decimal.NewFromInt(100), decimal.NewFromInt(180), decimal.NewFromInt(200))
	s.ByCategory = []model.CategoryAmount{{Name: "Rent", Amount: decimal.NewFromInt(180)}}

	md := summaryMarkdown(s, "USD")
	for _, want := range []string{
		"# Summary 2025-04-01 to 2025-04-30",
		"- Balance: -$80.00",
		"- Budget: $200.00 (90% used, warning)",
		"| Rent | $180.00 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestCompletionCoversEveryCommand(t *testing.T) {
	root := completion(flag.CommandLine, groups)

	for _, g := range groups {
		for _, c := range g.commands {
			if _, ok := root.Sub[c.Name()]; !ok {
				t.Errorf("no completion for %q", c.Name())
			}
		}
	}
	if _, ok := root.Flags["user"]; !ok {
		t.Error("global -user flag missing from completion")
	}
	if _, ok := root.Sub["add"].Flags["k"].(predict.Set); !ok {
		t.Errorf("add -k predictor = %T, want predict.Set", root.Sub["add"].Flags["k"])
	}
	if _, ok := root.Sub["export"].Flags["all"]; !ok {
		t.Error("export -all missing from completion")
	}
}

func TestSignInMigratesGuestRecords(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		RemoteBackend:   "memory",
		RemoteTimeout:   5 * time.Second,
		SyncWorkers:     2,
		SyncBatchSize:   10,
		DefaultCurrency: "USD",
	}
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	app, err := cli.NewApp(ctx, cfg, log.Default(log.ComponentCLI), store)
	if err != nil {
		store.Close()
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { app.Close(cfg.RemoteTimeout) })

	for _, amount := range []int64{10, 20} {
		_, _, err := app.Ledger.CreateTransaction(ctx, services.TransactionInput{
			Amount:     decimal.NewFromInt(amount),
			Category:   "Food",
			OccurredAt: now,
			Kind:       model.Outflow,
		})
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}

	report, err := signIn(ctx, app.Ledger, "u1", "u1@example.com")
	if err != nil {
		t.Fatalf("signIn: %v", err)
	}
	if report == nil || report.Migrated != 2 || !report.Completed {
		t.Fatalf("report = %+v, want 2 migrated and completed", report)
	}
	if n, _ := app.Store.CountTransactions(ctx, model.GuestID); n != 0 {
		t.Errorf("guest still owns %d record(s)", n)
	}
	if n, _ := app.Store.CountTransactions(ctx, "u1"); n != 2 {
		t.Errorf("u1 owns %d record(s), want 2", n)
	}

	report, err = signIn(ctx, app.Ledger, "u1", "")
	if err != nil || report != nil {
		t.Errorf("repeated sign-in = %+v, %v, want no migration", report, err)
	}
}
