package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/model"
)

// cell escapes table separators and flattens newlines.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func transactionsMarkdown(txs []model.Transaction, currency string, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Transactions\n\n")
	if len(txs) == 0 {
		b.WriteString("No transactions.\n")
		return b.String()
	}
	b.WriteString("| ID | Date | Category | Amount | Sync | Notes |\n")
	b.WriteString("|---:|---|---|---:|---|---|\n")
	for _, t := range txs {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n",
			t.ID,
			t.OccurredAt.In(loc).Format(dateLayout),
			cell(t.Category),
			model.FormatSigned(t.Amount, currency, t.Kind),
			t.SyncState,
			cell(t.Notes))
	}
	fmt.Fprintf(&b, "\n%d transaction(s)\n", len(txs))
	return b.String()
}

func categoryAmountsMarkdown(b *strings.Builder, rows []model.CategoryAmount, currency string) {
	if len(rows) == 0 {
		return
	}
	b.WriteString("\n| Category | Amount |\n|---|---:|\n")
	for _, r := range rows {
		fmt.Fprintf(b, "| %s | %s |\n", cell(r.Name), model.FormatAmount(r.Amount, currency))
	}
}

func totalsMarkdown(kind model.Kind, from, to time.Time, total decimal.Decimal, rows []model.CategoryAmount, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Total %s\n\n", kind)
	fmt.Fprintf(&b, "%s to %s: **%s**\n", from.Format(dateLayout), to.Format(dateLayout), model.FormatAmount(total, currency))
	categoryAmountsMarkdown(&b, rows, currency)
	return b.String()
}

func summaryMarkdown(s model.Summary, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Summary %s to %s\n\n", s.From.Format(dateLayout), s.To.Format(dateLayout))
	fmt.Fprintf(&b, "- Income: %s\n", model.FormatAmount(s.Income, currency))
	fmt.Fprintf(&b, "- Expenses: %s\n", model.FormatAmount(s.Expense, currency))
	fmt.Fprintf(&b, "- Balance: %s\n", balance(s.Balance, currency))
	if s.BudgetStatus != model.BudgetUnset {
		fmt.Fprintf(&b, "- Budget: %s (%s%% used, %s)\n",
			model.FormatAmount(s.Budget, currency),
			s.BudgetUsage.Mul(decimal.NewFromInt(100)).StringFixed(0),
			s.BudgetStatus)
	}
	categoryAmountsMarkdown(&b, s.ByCategory, currency)
	return b.String()
}

func balance(d decimal.Decimal, currency string) string {
	if d.IsNegative() {
		return "-" + model.FormatAmount(d.Abs(), currency)
	}
	return model.FormatAmount(d, currency)
}

func profileMarkdown(p model.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Profile %s\n\n", cell(p.OwnerID))
	if p.DisplayName != "" {
		fmt.Fprintf(&b, "- Name: %s\n", cell(p.DisplayName))
	}
	if p.Email != "" {
		fmt.Fprintf(&b, "- Email: %s\n", cell(p.Email))
	}
	fmt.Fprintf(&b, "- Currency: %s\n", p.CurrencyCode)
	if p.MonthlyBudget.IsPositive() {
		fmt.Fprintf(&b, "- Monthly budget: %s\n", model.FormatAmount(p.MonthlyBudget, p.CurrencyCode))
	} else {
		b.WriteString("- Monthly budget: not set\n")
	}
	if !p.IsGuest {
		fmt.Fprintf(&b, "- Sync: %s\n", p.SyncState)
		if p.LastSyncError != "" {
			fmt.Fprintf(&b, "- Last sync error: %s\n", cell(p.LastSyncError))
		}
	}
	return b.String()
}

func categoriesMarkdown(cats []model.Category) string {
	var b strings.Builder
	b.WriteString("# Categories\n\n| Name | Icon | Color | Default |\n|---|---|---|---|\n")
	for _, c := range cats {
		def := ""
		if c.IsDefault {
			def = "yes"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(c.Name), cell(c.Icon), c.ColorHex, def)
	}
	return b.String()
}
