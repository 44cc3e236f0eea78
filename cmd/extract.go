package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/etnz/fundmate/extract"
	"github.com/etnz/fundmate/renderer"
	"github.com/etnz/fundmate/store"
	"github.com/google/subcommands"
)

// extractCmd holds the flags for the 'extract' subcommand.
type extractCmd struct {
	broker  string
	account string
	date    string
	hint    string
	save    bool
}

func (*extractCmd) Name() string     { return "extract" }
func (*extractCmd) Synopsis() string { return "read an account snapshot from a broker statement" }
func (*extractCmd) Usage() string {
	return `fundmate extract -broker <name> [-account <id>] [-d <date>] [-save] <statement>...

  Reads cash and positions from statement files (PDF or screenshots) with
  Gemini. GEMINI_API_KEY must be set.

  With -save, the account replaces its previous version in the snapshot of
  the date, which is created if needed. This is how a portfolio is seeded
  before the first reconciliation.
`
}

func (c *extractCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.broker, "broker", "", "Broker of the statement (required)")
	f.StringVar(&c.account, "account", "", "Account identifier, when the broker has several")
	f.StringVar(&c.date, "d", date.Today().String(), "Date of the statement")
	f.StringVar(&c.hint, "hint", "", "Where the statement shows cash and holdings")
	f.BoolVar(&c.save, "save", false, "Save the account in the snapshot of the date")
}

func (c *extractCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.broker == "" || f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "a broker and at least one statement file are required")
		return subcommands.ExitUsageError
	}
	on, err := date.Parse(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := openApp()
	if err != nil {
		return failf("Error: %v", err)
	}
	defer a.Close()

	model, err := extract.NewGemini(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel)
	if err != nil {
		return failf("Error: %v", err)
	}
	e := &extract.Extractor{Model: model, Registry: a.registry, Log: a.log}
	if c.hint != "" {
		e.Hints = map[string]string{strings.ToUpper(c.broker): c.hint}
	}
	account, err := e.Extract(ctx, c.broker, c.account, on, f.Args()...)
	if err != nil {
		return failf("Error: %v", err)
	}

	p := fundmate.NewPortfolio(on)
	if c.save {
		stored, err := a.store.Load(ctx, on)
		switch {
		case err == nil:
			p = stored
		case !errors.Is(err, store.ErrNotFound):
			return failf("Error loading snapshot: %v", err)
		}
	}
	extract.Merge(p, account)
	if c.save {
		if err := a.store.Save(ctx, p); err != nil {
			return failf("Error saving snapshot: %v", err)
		}
		a.log.Info().Str("account", account.ID()).Str("date", on.String()).Msg("account saved")
	}
	printMarkdown(renderer.RenderSnapshot(renderer.NewSnapshot(p)))
	return subcommands.ExitSuccess
}
