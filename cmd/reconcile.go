package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/fundmate/date"
	"github.com/etnz/fundmate/internal/pipeline"
	"github.com/etnz/fundmate/renderer"
	"github.com/google/subcommands"
)

// reconcileCmd holds the flags for the 'reconcile' subcommand.
type reconcileCmd struct {
	date       string
	base       string
	tcDir      string
	unmatched  string
	allowShort bool
	noPrices   bool
	dryRun     bool
	asJSON     bool
	brief      bool
}

func (*reconcileCmd) Name() string { return "reconcile" }
func (*reconcileCmd) Synopsis() string {
	return "apply trade confirmations to the latest snapshot and save the result"
}
func (*reconcileCmd) Usage() string {
	return `fundmate reconcile [-d <date>] [-base <date>] [-tc <folder>] [<tc file>...]

  Loads the base snapshot (by default the latest one before the target date),
  applies the trade confirmations dated after it, refreshes prices and saves
  the snapshot of the target date with its audit trail.

  Trade confirmations are read from the files given as arguments, or from
  every .csv and .xlsx file of the folder.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", date.Today().String(), "Target date of the new snapshot")
	f.StringVar(&c.base, "base", "", "Date of the base snapshot. Defaults to the latest one before the target")
	f.StringVar(&c.tcDir, "tc", "", "Trade confirmation folder, overrides FUNDMATE_TC_DIR")
	f.StringVar(&c.unmatched, "unmatched", "", "What to do with unmatched SELL or BUYCOVER: abort or skip")
	f.BoolVar(&c.allowShort, "allow-short", false, "Allow sells beyond the held quantity")
	f.BoolVar(&c.noPrices, "no-prices", false, "Keep previous prices, do not query price sources")
	f.BoolVar(&c.dryRun, "n", false, "Dry run: print the report, save nothing")
	f.BoolVar(&c.asJSON, "json", false, "Print the run report as JSON")
	f.BoolVar(&c.brief, "brief", false, "Print the summary only")
}

func (c *reconcileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	target, err := date.Parse(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}
	var base date.Date
	if c.base != "" {
		if base, err = date.Parse(c.base); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing base date: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	a, err := openApp()
	if err != nil {
		return failf("Error: %v", err)
	}
	defer a.Close()

	if c.unmatched != "" {
		a.cfg.Unmatched = c.unmatched
	}
	if c.allowShort {
		a.cfg.AllowShort = true
	}
	if c.tcDir != "" {
		a.cfg.TCDir = c.tcDir
	}
	if c.noPrices {
		a.prices = nil
	}
	p, err := a.pipeline()
	if err != nil {
		return failf("Error: %v", err)
	}
	if p.TCDir == "" && f.NArg() == 0 {
		a.log.Warn().Msg("no trade confirmation folder nor file, prices only")
	}

	res, err := p.Run(ctx, pipeline.Options{Target: target, Base: base, Files: f.Args(), DryRun: c.dryRun})
	if err != nil {
		return failf("Reconciliation failed: %v", err)
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Report); err != nil {
			return failf("Error: %v", err)
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(renderer.RenderReport(renderer.NewResultReport(res), renderer.ReportRenderOptions{
		SkipTransactions: c.brief,
		SkipPrices:       c.brief,
	}))
	return subcommands.ExitSuccess
}
