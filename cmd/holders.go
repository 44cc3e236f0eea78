package cmd

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/etnz/fundmate/date"
	"github.com/etnz/fundmate/store"
	"github.com/google/subcommands"
)

type holdersCmd struct{}

func (*holdersCmd) Name() string     { return "holders" }
func (*holdersCmd) Synopsis() string { return "display the quantity held of an instrument over time" }
func (*holdersCmd) Usage() string {
	return `fundmate holders <description>

  Displays, for every stored snapshot, the total quantity of the instrument
  across accounts. The description can use any supported notation.
`
}

func (c *holdersCmd) SetFlags(f *flag.FlagSet) {}

func (c *holdersCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "an instrument description is required")
		return subcommands.ExitUsageError
	}

	a, err := openApp()
	if err != nil {
		return failf("Error: %v", err)
	}
	defer a.Close()

	in, err := a.registry.Parse(strings.Join(f.Args(), " "))
	if err != nil {
		return failf("Error: %v", err)
	}
	holders, err := store.Holders(ctx, a.store, in.Key())
	if err != nil {
		return failf("Error: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# `%s`\n\n", in.Key())
	if len(holders) == 0 {
		b.WriteString("Never held.\n")
	} else {
		b.WriteString("| Date | Quantity |\n|---|---:|\n")
		for _, on := range slices.SortedFunc(maps.Keys(holders), date.Date.Compare) {
			fmt.Fprintf(&b, "| %s | %s |\n", on, holders[on])
		}
	}
	printMarkdown(b.String())
	return subcommands.ExitSuccess
}
