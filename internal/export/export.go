// Package export renders ledger records as CSV or as a plain text report.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/model"
)

const dateLayout = "2006-01-02"

var csvHeader = []string{"Date", "Category", "Type", "Amount", "Notes"}

// WriteCSV writes one row per transaction after the header. Dates are
// rendered in loc (UTC when nil) and amounts with two decimals.
func WriteCSV(w io.Writer, txs []model.Transaction, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		row := []string{
			t.OccurredAt.In(loc).Format(dateLayout),
			t.Category,
			string(t.Kind),
			t.Amount.StringFixed(2),
			t.Notes,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", t.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// FileName returns the export file name for a snapshot taken at now,
// e.g. expenses_20250402_091500.csv.
func FileName(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext)
}

// Report is the input of WriteReport.
type Report struct {
	Generated    time.Time
	Currency     string
	Income       decimal.Decimal
	Expense      decimal.Decimal
	Transactions []model.Transaction
	Location     *time.Location
}

const rule = "================================="

// WriteReport writes a human readable summary followed by the transactions.
func WriteReport(w io.Writer, r Report) error {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("         LEDGER REPORT\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", r.Generated.In(loc).Format("2006-01-02 15:04:05"))

	b.WriteString("SUMMARY\n")
	b.WriteString("---------------------------------\n")
	fmt.Fprintf(&b, "Total Income:  %s\n", model.FormatAmount(r.Income, r.Currency))
	fmt.Fprintf(&b, "Total Expense: %s\n", model.FormatAmount(r.Expense, r.Currency))
	fmt.Fprintf(&b, "Balance:       %s\n\n", formatBalance(r.Income.Sub(r.Expense), r.Currency))

	b.WriteString("TRANSACTIONS\n")
	b.WriteString("---------------------------------\n")
	for _, t := range r.Transactions {
		fmt.Fprintf(&b, "%s | %s | %s",
			t.OccurredAt.In(loc).Format(dateLayout),
			model.FormatSigned(t.Amount, r.Currency, t.Kind),
			t.Category)
		if t.Notes != "" {
			b.WriteString(" | " + t.Notes)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString("         END OF REPORT\n")
	b.WriteString(rule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func formatBalance(d decimal.Decimal, currency string) string {
	if d.IsNegative() {
		return "-" + model.FormatAmount(d.Abs(), currency)
	}
	return model.FormatAmount(d, currency)
}
