package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"ledger/internal/model"
	"ledger/internal/services"
)

type profileCmd struct {
	name     string
	currency string
}

func (*profileCmd) Name() string     { return "profile" }
func (*profileCmd) Synopsis() string { return "show or edit the current profile" }
func (*profileCmd) Usage() string {
	return `ledgerctl profile [-name <display name>] [-currency <ISO code>]

  Without flags, prints the profile.
`
}

func (c *profileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "New display name.")
	f.StringVar(&c.currency, "currency", "", "New currency, as an ISO 4217 code.")
}

func (c *profileCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		if c.name == "" && c.currency == "" {
			p, err := e.Ledger.GetProfile(ctx)
			if err != nil {
				return err
			}
			printMarkdown(profileMarkdown(p))
			return nil
		}

		var upd services.ProfileUpdate
		if c.name != "" {
			upd.DisplayName = &c.name
		}
		if c.currency != "" {
			code := strings.ToUpper(strings.TrimSpace(c.currency))
			if err := model.ValidateCurrency(code); err != nil {
				return err
			}
			upd.CurrencyCode = &code
		}
		p, h, err := e.Ledger.UpdateProfile(ctx, upd)
		if err != nil {
			return err
		}
		p.SyncState = e.waitPush(ctx, h)
		printMarkdown(profileMarkdown(p))
		return nil
	})
}

type budgetCmd struct{}

func (*budgetCmd) Name() string     { return "budget" }
func (*budgetCmd) Synopsis() string { return "set the monthly budget" }
func (*budgetCmd) Usage() string {
	return `ledgerctl budget <amount>

  Sets the monthly spending budget. 0 clears it.
`
}

func (*budgetCmd) SetFlags(*flag.FlagSet) {}

func (*budgetCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		if f.NArg() != 1 {
			return usagef("budget takes exactly one amount argument")
		}
		amount, err := model.ParseAmount(f.Arg(0))
		if err != nil {
			return err
		}
		p, h, err := e.Ledger.UpdateBudget(ctx, amount)
		if err != nil {
			return err
		}
		fmt.Printf("Monthly budget set to %s (%s)\n", model.FormatAmount(p.MonthlyBudget, p.CurrencyCode), e.waitPush(ctx, h))
		return nil
	})
}

type categoriesCmd struct {
	add   string
	icon  string
	color string
}

func (*categoriesCmd) Name() string     { return "categories" }
func (*categoriesCmd) Synopsis() string { return "list categories or add a custom one" }
func (*categoriesCmd) Usage() string {
	return `ledgerctl categories [-add <name> [-icon <emoji>] [-color <#RRGGBB>]]
`
}

func (c *categoriesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.add, "add", "", "Name of a custom category to create.")
	f.StringVar(&c.icon, "icon", "", "Icon of the new category.")
	f.StringVar(&c.color, "color", "", "Color of the new category as #RRGGBB.")
}

func (c *categoriesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		if c.add != "" {
			cat, err := e.Ledger.CreateCategory(ctx, c.add, c.icon, c.color)
			if err != nil {
				return err
			}
			fmt.Printf("Added category %s %s\n", cat.Icon, cat.Name)
			return nil
		}
		cats, err := e.Ledger.Categories(ctx)
		if err != nil {
			return err
		}
		printMarkdown(categoriesMarkdown(cats))
		return nil
	})
}
