package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/subcommands"

	"ledger/internal/amqp"
	"ledger/internal/services"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "move guest data to the signed-in user" }
func (*migrateCmd) Usage() string {
	return `ledgerctl -user <id> migrate

  Uploads every guest record under the user and re-owns it locally. Records
  that fail stay with the guest; run the command again to retry them.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		if *userID == "" {
			return usagef("migrate needs -user")
		}
		report, err := e.Ledger.MigrateGuestData(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Migrated %d record(s), %d failed, %d remaining\n", report.Migrated, report.Failed, report.Remaining)
		if report.Completed {
			fmt.Println("Guest data fully migrated")
		}
		return nil
	})
}

type syncCmd struct {
	reason   string
	rejected bool
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "push unsynced records to the remote store" }
func (*syncCmd) Usage() string {
	return `ledgerctl -user <id> sync [-reason <text>] [-rejected]

  Pushes every pending record and the profile, then prints how many ended in
  each sync state. -rejected retries records the remote store refused.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.reason, "reason", "cli", "Reason recorded in the logs.")
	f.BoolVar(&c.rejected, "rejected", false, "Retry rejected records instead of pending ones.")
}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		var (
			report services.SyncReport
			err    error
		)
		if c.rejected {
			report, err = e.Ledger.RetryRejected(ctx)
		} else {
			report, err = e.Ledger.SyncNow(ctx, c.reason)
		}
		if err != nil {
			return err
		}
		if len(report.Handles) == 0 {
			fmt.Println("Nothing to sync")
			return nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
		defer cancel()
		states, err := report.Wait(waitCtx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Sync still running after %s\n", e.cfg.RemoteTimeout)
		}
		parts := make([]string, 0, len(states))
		for state, n := range states {
			parts = append(parts, fmt.Sprintf("%s=%d", state, n))
		}
		sort.Strings(parts)
		fmt.Printf("Pushed %d transaction(s), profile=%t: %s\n", report.Transactions, report.Profile, strings.Join(parts, " "))
		return nil
	})
}

type triggerCmd struct {
	reason string
}

func (*triggerCmd) Name() string     { return "trigger" }
func (*triggerCmd) Synopsis() string { return "ask a running ledger server to sync" }
func (*triggerCmd) Usage() string {
	return `ledgerctl trigger [-reason <text>]

  Publishes a sync trigger on the configured AMQP exchange.
`
}

func (c *triggerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.reason, "reason", "cli", "Reason carried by the trigger.")
}

func (c *triggerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if cfg.AMQPURL == "" {
		fmt.Fprintln(os.Stderr, "Error: AMQP_URL is not set")
		return subcommands.ExitFailure
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error connecting to AMQP:", err)
		return subcommands.ExitFailure
	}
	defer client.Close()

	if err := client.PublishSyncTrigger(ctx, c.reason); err != nil {
		fmt.Fprintln(os.Stderr, "Error publishing trigger:", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Sync trigger published on %s\n", cfg.AMQPExchange)
	return subcommands.ExitSuccess
}
