package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/etnz/fundmate/renderer"
	"github.com/etnz/fundmate/store"
	"github.com/google/subcommands"
)

// showCmd holds the flags for the 'show' subcommand.
type showCmd struct {
	audit  bool
	asJSON bool
	csv    string
	list   bool
}

func (*showCmd) Name() string     { return "show" }
func (*showCmd) Synopsis() string { return "display a stored snapshot" }
func (*showCmd) Usage() string {
	return `fundmate show [-audit] [-json | -csv positions|cash] [<date>|latest]

  Displays the snapshot of a date, the latest one by default.
`
}

func (c *showCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.audit, "audit", false, "Also display the audit trail of the run that produced the snapshot")
	f.BoolVar(&c.asJSON, "json", false, "Print the snapshot as JSON")
	f.StringVar(&c.csv, "csv", "", "Export positions or cash as CSV")
	f.BoolVar(&c.list, "l", false, "List the stored dates")
}

func (c *showCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "at most one date expected")
		return subcommands.ExitUsageError
	}
	if c.csv != "" && c.csv != "positions" && c.csv != "cash" {
		fmt.Fprintf(os.Stderr, "unknown CSV export %q, want positions or cash\n", c.csv)
		return subcommands.ExitUsageError
	}

	a, err := openApp()
	if err != nil {
		return failf("Error: %v", err)
	}
	defer a.Close()

	if c.list {
		dates, err := a.store.Dates(ctx)
		if err != nil {
			return failf("Error listing snapshots: %v", err)
		}
		for _, d := range dates {
			fmt.Println(d)
		}
		return subcommands.ExitSuccess
	}

	on, err := resolveDate(ctx, a.store, f.Arg(0))
	if err != nil {
		return failf("Error: %v", err)
	}
	p, err := a.store.Load(ctx, on)
	if err != nil {
		return failf("Error loading snapshot: %v", err)
	}

	switch {
	case c.asJSON:
		if err := fundmate.EncodePortfolio(os.Stdout, p); err != nil {
			return failf("Error: %v", err)
		}
		return subcommands.ExitSuccess
	case c.csv == "positions":
		err = store.ExportPositions(ctx, os.Stdout, p, a.converter())
	case c.csv == "cash":
		err = store.ExportCash(ctx, os.Stdout, p, a.converter())
	}
	if err != nil {
		return failf("Error exporting: %v", err)
	}
	if c.csv != "" {
		return subcommands.ExitSuccess
	}

	md := renderer.RenderSnapshot(renderer.NewSnapshot(p))
	if c.audit {
		records, err := a.store.LoadAudit(ctx, on)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return failf("Error loading audit: %v", err)
		}
		base := &fundmate.Portfolio{}
		if prev, err := store.LatestBefore(ctx, a.store, on); err == nil {
			base.Date = prev
		}
		report := fundmate.NewUpdateReport(base, p, records, nil)
		md += "\n" + renderer.RenderReport(renderer.NewReport(report, records, nil), renderer.ReportRenderOptions{SkipPrices: true})
	}
	printMarkdown(md)
	return subcommands.ExitSuccess
}

// resolveDate parses a date argument, empty or "latest" being the most
// recent stored date.
func resolveDate(ctx context.Context, s store.Store, arg string) (date.Date, error) {
	if arg == "" || arg == "latest" {
		return store.Latest(ctx, s)
	}
	return date.Parse(arg)
}
