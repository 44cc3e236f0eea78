package fundmate

import (
	"context"
	"fmt"

	"github.com/etnz/fundmate/date"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reconciler sequences a reconciliation run: transactions are folded onto the
// base snapshot, account by account, then the result is re-priced.
type Reconciler struct {
	Matcher    *Matcher
	Prices     *PriceRefresher // nil disables the price refresh
	Policy     UnmatchedPolicy
	AllowShort bool
	Workers    int // accounts reconciled concurrently, 10 when 0
	Logger     zerolog.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	RunID    string
	Snapshot *Portfolio
	Audit    []AuditRecord
	Prices   []PriceAudit
	Report   UpdateReport
}

type accountResult struct {
	account *AccountSnapshot
	records []AuditRecord
	err     error
}

// Run reconciles base with txs as of target. Transactions outside
// (base.Date, target] must have been filtered by the caller.
//
// Accounts are independent and run in parallel; transactions of one account
// run sequentially. Any fatal error fails the whole run and no result is
// returned, so nothing partial can be persisted.
func (r *Reconciler) Run(ctx context.Context, base *Portfolio, txs []Transaction, target date.Date) (*Result, error) {
	runID := uuid.NewString()
	log := r.Logger.With().Str("run", runID).Str("target", target.String()).Logger()
	if !base.Date.IsZero() && target.Before(base.Date) {
		return nil, fmt.Errorf("target date %s is before base date %s", target, base.Date)
	}
	log.Info().Int("accounts", len(base.Accounts)).Int("transactions", len(txs)).Str("base", base.Date.String()).Msg("reconciliation started")

	opts := ApplyOptions{Matcher: r.Matcher, Policy: r.Policy, AllowShort: r.AllowShort, Date: target}
	batches, err := GroupByAccount(base, txs)
	if err != nil {
		return nil, err
	}
	results := runPool(ctx, r.Workers, batches, func(ctx context.Context, b AccountBatch) accountResult {
		acc, recs, err := ApplyAccount(b.Base, b.Transactions, opts)
		return accountResult{account: acc, records: recs, err: err}
	})

	snapshot := &Portfolio{Date: target}
	var audit []AuditRecord
	for i, res := range results {
		if res.err != nil {
			log.Error().Err(res.err).Str("account", batches[i].Base.ID()).Msg("reconciliation aborted")
			return nil, res.err
		}
		snapshot.Accounts = append(snapshot.Accounts, res.account)
		audit = append(audit, res.records...)
	}
	audit = SortAudit(audit)
	for _, rec := range audit {
		if rec.Status == StatusSkipped {
			log.Warn().Int("row", rec.Row).Str("account", rec.Account).Str("instrument", rec.Instrument).Msg(rec.Reason)
		}
	}

	var prices []PriceAudit
	if r.Prices != nil {
		snapshot, prices = r.Prices.Refresh(ctx, snapshot, target)
		sources := make(map[InstrumentKey]PriceSource, len(prices))
		for _, p := range prices {
			sources[p.Key] = p.Source
		}
		for i := range audit {
			audit[i].PriceSource = sources[audit[i].Key]
		}
	}

	report := NewUpdateReport(base, snapshot, audit, prices)
	report.RunID = runID
	log.Info().
		Int("buys", report.Buys).
		Int("sells", report.Sells).
		Int("buyCovers", report.BuyCovers).
		Int("skipped", report.Skipped).
		Int("positions", report.Positions).
		Int("stale", report.Stale).
		Str("cash", report.CashDelta.Decimal().String()).
		Msg("reconciliation done")

	return &Result{RunID: runID, Snapshot: snapshot, Audit: audit, Prices: prices, Report: report}, nil
}
