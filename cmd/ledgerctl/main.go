// Command ledgerctl manages the local ledger from the terminal.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

type group struct {
	name     string
	commands []subcommands.Command
}

var groups = []group{
	{"transactions", []subcommands.Command{&addCmd{}, &listCmd{}, &deleteCmd{}}},
	{"reports", []subcommands.Command{&totalsCmd{}, &summaryCmd{}, &exportCmd{}}},
	{"account", []subcommands.Command{&profileCmd{}, &budgetCmd{}, &categoriesCmd{}}},
	{"sync", []subcommands.Command{&migrateCmd{}, &syncCmd{}, &triggerCmd{}}},
}

func main() {
	name := path.Base(os.Args[0])
	// Returns immediately unless the shell asked for completions.
	completion(flag.CommandLine, groups).Complete(name)

	commander := subcommands.NewCommander(flag.CommandLine, name)
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	for _, g := range groups {
		for _, c := range g.commands {
			commander.Register(c, g.name)
		}
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
