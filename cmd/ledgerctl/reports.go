package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"

	"ledger/internal/export"
	"ledger/internal/storage"
)

type totalsCmd struct {
	kind  string
	month string
	start string
	end   string
}

func (*totalsCmd) Name() string     { return "totals" }
func (*totalsCmd) Synopsis() string { return "sum one kind of transaction over a period" }
func (*totalsCmd) Usage() string {
	return `ledgerctl totals [-k expense|income] [-m <YYYY-MM> | -s <start> -e <end>]

  Prints the total for the period and its breakdown by category.
`
}

func (c *totalsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "k", "expense", "Transaction kind: expense or income.")
	f.StringVar(&c.month, "m", "", "Month (YYYY-MM). Defaults to the current month.")
	f.StringVar(&c.start, "s", "", "Start date (YYYY-MM-DD). Overrides -m.")
	f.StringVar(&c.end, "e", "", "End date (YYYY-MM-DD), inclusive. Overrides -m.")
}

func (c *totalsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		kind, err := parseKind(c.kind)
		if err != nil {
			return err
		}
		from, to, err := parseRange(c.start, c.end, c.month, time.Now())
		if err != nil {
			return err
		}
		total, err := e.Ledger.Totals(ctx, kind, from, to)
		if err != nil {
			return err
		}
		rows, err := e.Ledger.CategoryTotals(ctx, kind, from, to)
		if err != nil {
			return err
		}
		printMarkdown(totalsMarkdown(kind, from, to, total, rows, e.Ledger.Currency(ctx)))
		return nil
	})
}

type summaryCmd struct {
	month string
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "show income, expenses, balance and budget for a month" }
func (*summaryCmd) Usage() string {
	return `ledgerctl summary [-m <YYYY-MM>]
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.month, "m", "", "Month (YYYY-MM). Defaults to the current month.")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		from, to, err := parseMonth(c.month, time.Now())
		if err != nil {
			return err
		}
		s, err := e.Ledger.Summary(ctx, from, to)
		if err != nil {
			return err
		}
		printMarkdown(summaryMarkdown(s, e.Ledger.Currency(ctx)))
		return nil
	})
}

type exportCmd struct {
	format string
	output string
	month  string
	start  string
	end    string
	all    bool
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export transactions as CSV or as a text report" }
func (*exportCmd) Usage() string {
	return `ledgerctl export [-f csv|report] [-o <file>] [-all | -m <YYYY-MM> | -s <start> -e <end>]

  Writes to stdout unless -o is given. "-o ." picks a timestamped file name
  in the current directory.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.format, "f", "csv", "Output format: csv or report.")
	f.StringVar(&c.output, "o", "", "Output file. Defaults to stdout.")
	f.StringVar(&c.month, "m", "", "Month (YYYY-MM). Defaults to the current month.")
	f.StringVar(&c.start, "s", "", "Start date (YYYY-MM-DD). Overrides -m.")
	f.StringVar(&c.end, "e", "", "End date (YYYY-MM-DD), inclusive. Overrides -m.")
	f.BoolVar(&c.all, "all", false, "Export every transaction regardless of date.")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		if c.format != "csv" && c.format != "report" {
			return usagef("invalid format %q: use csv or report", c.format)
		}
		now := time.Now()
		var filter storage.Filter
		if !c.all {
			from, to, err := parseRange(c.start, c.end, c.month, now)
			if err != nil {
				return err
			}
			filter.From, filter.To = from, to
		}
		txs, err := e.Ledger.QueryTransactions(ctx, filter)
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if c.output != "" {
			name := c.output
			if name == "." {
				ext := "csv"
				if c.format == "report" {
					ext = "txt"
				}
				name = export.FileName("expenses", ext, now)
			}
			f, err := os.Create(name)
			if err != nil {
				return fmt.Errorf("create %s: %w", name, err)
			}
			defer f.Close()
			w = f
			defer fmt.Fprintf(os.Stderr, "Exported %d transaction(s) to %s\n", len(txs), name)
		}

		if c.format == "csv" {
			return export.WriteCSV(w, txs, time.Local)
		}
		s, err := e.Ledger.Summary(ctx, filter.From, filter.To)
		if err != nil {
			return err
		}
		return export.WriteReport(w, export.Report{
			Generated:    now,
			Currency:     e.Ledger.Currency(ctx),
			Income:       s.Income,
			Expense:      s.Expense,
			Transactions: txs,
			Location:     time.Local,
		})
	})
}
