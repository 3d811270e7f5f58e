package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/google/subcommands"

	"ledger/internal/model"
	"ledger/internal/services"
	"ledger/internal/storage"
)

type addCmd struct {
	category string
	kind     string
	date     string
	notes    string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "record an expense or an income" }
func (*addCmd) Usage() string {
	return `ledgerctl add -c <category> [-k expense|income] [-d <date>] [-n <notes>] <amount>

  Records a transaction. For a signed-in user the command waits for the
  record to reach the remote store and prints its sync state.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.category, "c", "", "Category name (required).")
	f.StringVar(&c.kind, "k", string(model.Outflow), "Transaction kind: expense or income.")
	f.StringVar(&c.date, "d", "", "Date as YYYY-MM-DD. Defaults to now.")
	f.StringVar(&c.notes, "n", "", "Free text notes.")
}

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		if f.NArg() != 1 {
			return usagef("add takes exactly one amount argument")
		}
		amount, err := model.ParseAmount(f.Arg(0))
		if err != nil {
			return err
		}
		kind, err := parseKind(c.kind)
		if err != nil {
			return err
		}
		when, err := parseDate(c.date, time.Now())
		if err != nil {
			return err
		}

		t, h, err := e.Ledger.CreateTransaction(ctx, services.TransactionInput{
			Amount:     amount,
			Category:   c.category,
			OccurredAt: when,
			Notes:      c.notes,
			Kind:       kind,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added transaction %d: %s %s on %s (%s)\n",
			t.ID,
			model.FormatSigned(t.Amount, e.Ledger.Currency(ctx), t.Kind),
			t.Category,
			t.OccurredAt.In(time.Local).Format(dateLayout),
			e.waitPush(ctx, h))
		return nil
	})
}

type listCmd struct {
	kind     string
	category string
	start    string
	end      string
	month    string
	limit    int
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list transactions, newest first" }
func (*listCmd) Usage() string {
	return `ledgerctl list [-k expense|income] [-c <category>] [-m <YYYY-MM> | -s <start> -e <end>] [-limit <n>]

  Lists the current user's transactions. Without a range, all are listed.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "k", "", "Only this kind: expense or income.")
	f.StringVar(&c.category, "c", "", "Only this category.")
	f.StringVar(&c.start, "s", "", "Start date (YYYY-MM-DD).")
	f.StringVar(&c.end, "e", "", "End date (YYYY-MM-DD), inclusive.")
	f.StringVar(&c.month, "m", "", "Month (YYYY-MM). Ignored when -s or -e is set.")
	f.IntVar(&c.limit, "limit", 0, "Show at most N transactions.")
}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		filter := storage.Filter{Category: c.category, Limit: c.limit}
		if c.limit < 0 {
			return usagef("-limit must not be negative")
		}
		if c.kind != "" {
			kind, err := parseKind(c.kind)
			if err != nil {
				return err
			}
			filter.Kind = kind
		}
		if c.start != "" || c.end != "" || c.month != "" {
			from, to, err := parseRange(c.start, c.end, c.month, time.Now())
			if err != nil {
				return err
			}
			filter.From, filter.To = from, to
		}

		txs, err := e.Ledger.QueryTransactions(ctx, filter)
		if err != nil {
			return err
		}
		printMarkdown(transactionsMarkdown(txs, e.Ledger.Currency(ctx), time.Local))
		return nil
	})
}

type deleteCmd struct{}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete a transaction" }
func (*deleteCmd) Usage() string {
	return `ledgerctl delete <id>

  Deletes the transaction locally and, for a signed-in user, remotely.
`
}

func (*deleteCmd) SetFlags(*flag.FlagSet) {}

func (*deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		if f.NArg() != 1 {
			return usagef("delete takes exactly one id argument")
		}
		id, err := strconv.ParseInt(f.Arg(0), 10, 64)
		if err != nil || id <= 0 {
			return usagef("invalid id %q", f.Arg(0))
		}
		h, err := e.Ledger.DeleteTransaction(ctx, id)
		if err != nil {
			return err
		}
		if h == nil {
			fmt.Printf("Deleted transaction %d\n", id)
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
		defer cancel()
		res, err := h.Wait(ctx)
		switch {
		case err != nil:
			fmt.Printf("Deleted transaction %d locally; remote delete still running\n", id)
		case res.Err != nil:
			fmt.Printf("Deleted transaction %d locally; remote delete failed: %v\n", id, res.Err)
		default:
			fmt.Printf("Deleted transaction %d\n", id)
		}
		return nil
	})
}
