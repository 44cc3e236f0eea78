package fundmate

import (
	"github.com/etnz/fundmate/date"
	"github.com/shopspring/decimal"
)

// UpdateReport summarizes a reconciliation run.
type UpdateReport struct {
	RunID        string    `json:"runId"`
	BaseDate     date.Date `json:"baseDate"`
	TargetDate   date.Date `json:"targetDate"`
	Accounts     int       `json:"accounts"`
	Transactions int       `json:"transactions"`
	Buys         int       `json:"buys"`
	Sells        int       `json:"sells"`
	BuyCovers    int       `json:"buyCovers"`
	Opened       int       `json:"opened"`  // positions created by transactions
	Closed       int       `json:"closed"`  // positions removed at zero
	Skipped      int       `json:"skipped"` // unmatched, skipped by policy
	CashDelta    Money     `json:"cashDelta"`
	Positions    int       `json:"positions"` // in the resulting snapshot
	Resolved     int       `json:"resolved"`  // instruments re-priced
	Stale        int       `json:"stale"`     // instruments kept at their previous price
}

// NewUpdateReport computes the report of a run.
func NewUpdateReport(base, result *Portfolio, audit []AuditRecord, prices []PriceAudit) UpdateReport {
	r := UpdateReport{
		BaseDate:   base.Date,
		TargetDate: result.Date,
		Accounts:   len(result.Accounts),
		Positions:  result.Positions(),
		CashDelta:  M(decimal.Zero, BaseCurrency),
	}
	for _, rec := range audit {
		r.Transactions++
		switch rec.Side {
		case Buy:
			r.Buys++
		case Sell:
			r.Sells++
		case BuyCover:
			r.BuyCovers++
		}
		if rec.Status == StatusSkipped {
			r.Skipped++
			continue
		}
		r.CashDelta = r.CashDelta.Add(rec.Cash)
		for _, lot := range rec.Lots {
			if lot.Before.IsZero() && !lot.After.IsZero() {
				r.Opened++
			}
			if lot.Removed {
				r.Closed++
			}
		}
	}
	for _, p := range prices {
		switch p.Source {
		case SourceResolved:
			r.Resolved++
		case SourceStale:
			r.Stale++
		}
	}
	return r
}
