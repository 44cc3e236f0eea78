// Package pipeline runs a complete reconciliation: it finds the base
// snapshot, reads the trade confirmations, reconciles and persists the new
// snapshot with its audit trail.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/etnz/fundmate/store"
	"github.com/etnz/fundmate/tc"
	"github.com/rs/zerolog"
)

// Pipeline holds the collaborators of a run.
type Pipeline struct {
	Store         store.Store
	Reconciler    *fundmate.Reconciler
	TCDir         string          // trade confirmation folder, read when Options.Files is empty
	DefaultBroker string          // broker of rows without a Broker cell
	ReclassifyMMF bool            // move money market funds into cash
	FX            store.Converter // enables the CSV exports of file stores when set
	Log           zerolog.Logger
}

// Options of a single run.
type Options struct {
	Target date.Date // today when zero
	Base   date.Date // latest stored snapshot before Target when zero
	Files  []string  // explicit trade confirmation files
	DryRun bool      // reconcile without saving
}

// fileWriter is implemented by stores able to keep extra files next to a
// snapshot.
type fileWriter interface {
	WriteFile(on date.Date, name string, data []byte) (string, error)
}

// Run performs one reconciliation. Nothing is saved unless the whole run
// succeeds.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*fundmate.Result, error) {
	target := opts.Target
	if target.IsZero() {
		target = date.Today()
	}
	log := p.Log.With().Str("target", target.String()).Logger()

	base, err := p.loadBase(ctx, opts.Base, target)
	if err != nil {
		return nil, err
	}

	var rows []fundmate.RawRow
	switch {
	case len(opts.Files) > 0:
		rows, err = tc.ReadFiles(opts.Files...)
	case p.TCDir != "":
		rows, err = tc.ReadDir(p.TCDir)
	}
	if err != nil {
		return nil, err
	}
	txs, err := fundmate.LoadTransactions(rows, fundmate.LoadOptions{After: base.Date, Until: target, DefaultBroker: p.DefaultBroker})
	if err != nil {
		return nil, fmt.Errorf("invalid trade confirmations: %w", err)
	}
	log.Info().Int("rows", len(rows)).Int("transactions", len(txs)).Msg("trade confirmations loaded")

	res, err := p.Reconciler.Run(ctx, base, txs, target)
	if err != nil {
		return nil, err
	}
	if p.ReclassifyMMF {
		if n := store.ReclassifyMMF(res.Snapshot, log); n > 0 {
			res.Report = fundmate.NewUpdateReport(base, res.Snapshot, res.Audit, res.Prices)
			res.Report.RunID = res.RunID
		}
	}
	if opts.DryRun {
		log.Info().Str("run", res.RunID).Msg("dry run, nothing saved")
		return res, nil
	}

	// the audit goes first: a stored snapshot always has its audit trail
	if err := p.Store.SaveAudit(ctx, target, res.RunID, res.Audit); err != nil {
		return nil, err
	}
	if err := p.Store.Save(ctx, res.Snapshot); err != nil {
		return nil, err
	}
	if err := p.export(ctx, res.Snapshot); err != nil {
		// the snapshot is saved, a missing export is only worth a warning
		log.Warn().Err(err).Msg("csv export failed")
	}
	log.Info().Str("run", res.RunID).Int("positions", res.Snapshot.Positions()).Msg("snapshot saved")
	return res, nil
}

func (p *Pipeline) loadBase(ctx context.Context, on, target date.Date) (*fundmate.Portfolio, error) {
	if on.IsZero() {
		latest, err := store.LatestBefore(ctx, p.Store, target)
		if errors.Is(err, store.ErrNotFound) {
			p.Log.Warn().Str("target", target.String()).Msg("no base snapshot, starting from an empty portfolio")
			return fundmate.NewPortfolio(date.Date{}), nil
		}
		if err != nil {
			return nil, err
		}
		on = latest
	}
	base, err := p.Store.Load(ctx, on)
	if err != nil {
		return nil, fmt.Errorf("cannot load base snapshot %s: %w", on, err)
	}
	return base, nil
}

func (p *Pipeline) export(ctx context.Context, snapshot *fundmate.Portfolio) error {
	w, ok := p.Store.(fileWriter)
	if !ok || p.FX == nil {
		return nil
	}
	var positions, cash bytes.Buffer
	if err := store.ExportPositions(ctx, &positions, snapshot, p.FX); err != nil {
		return err
	}
	if err := store.ExportCash(ctx, &cash, snapshot, p.FX); err != nil {
		return err
	}
	if _, err := w.WriteFile(snapshot.Date, "positions.csv", positions.Bytes()); err != nil {
		return err
	}
	_, err := w.WriteFile(snapshot.Date, "cash.csv", cash.Bytes())
	return err
}

// Job adapts a pipeline to the server scheduler: every run updates the
// portfolio to the current day.
type Job struct {
	Pipeline *Pipeline
}

func (j *Job) Name() string { return "reconcile" }

func (j *Job) Run(ctx context.Context) error {
	_, err := j.Pipeline.Run(ctx, Options{})
	return err
}
