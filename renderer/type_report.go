package renderer

import (
	"github.com/etnz/fundmate"
)

// Report is the view of an update rendered by RenderReport.
type Report struct {
	RunID        string `json:"runId"`
	BaseDate     string `json:"baseDate"`
	TargetDate   string `json:"targetDate"`
	Accounts     int    `json:"accounts"`
	Transactions int    `json:"transactions"`
	Buys         int    `json:"buys"`
	Sells        int    `json:"sells"`
	BuyCovers    int    `json:"buyCovers"`
	Opened       int    `json:"opened"`
	Closed       int    `json:"closed"`
	Skipped      int    `json:"skipped"`
	CashDelta    string `json:"cashDelta"`
	Positions    int    `json:"positions"`
	Resolved     int    `json:"resolved"`
	Stale        int    `json:"stale"`

	Records []RecordLine `json:"records"`
	Prices  []PriceLine  `json:"prices"`
}

// RecordLine is one applied transaction.
type RecordLine struct {
	Row        int    `json:"row"`
	TradeDate  string `json:"tradeDate"`
	Account    string `json:"account"`
	Side       string `json:"side"`
	Instrument string `json:"instrument"`
	Quantity   string `json:"quantity"`
	Cash       string `json:"cash"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
}

// PriceLine is one refreshed instrument.
type PriceLine struct {
	Symbol   string `json:"symbol"`
	Previous string `json:"previous"`
	Price    string `json:"price"`
	Source   string `json:"source"`
	Holders  int    `json:"holders"`
	Error    string `json:"error"`
}

// NewReport builds the view of a run.
func NewReport(r fundmate.UpdateReport, audit []fundmate.AuditRecord, prices []fundmate.PriceAudit) *Report {
	v := &Report{
		RunID:        r.RunID,
		BaseDate:     r.BaseDate.String(),
		TargetDate:   r.TargetDate.String(),
		Accounts:     r.Accounts,
		Transactions: r.Transactions,
		Buys:         r.Buys,
		Sells:        r.Sells,
		BuyCovers:    r.BuyCovers,
		Opened:       r.Opened,
		Closed:       r.Closed,
		Skipped:      r.Skipped,
		CashDelta:    r.CashDelta.SignedString(),
		Positions:    r.Positions,
		Resolved:     r.Resolved,
		Stale:        r.Stale,
	}
	for _, rec := range audit {
		v.Records = append(v.Records, RecordLine{
			Row:        rec.Row,
			TradeDate:  rec.TradeDate.String(),
			Account:    rec.Account,
			Side:       string(rec.Side),
			Instrument: cell(rec.Instrument),
			Quantity:   rec.Quantity.String(),
			Cash:       rec.Cash.SignedString(),
			Status:     string(rec.Status),
			Reason:     cell(rec.Reason),
		})
	}
	for _, p := range prices {
		v.Prices = append(v.Prices, PriceLine{
			Symbol:   cell(p.Symbol),
			Previous: price(p.Previous),
			Price:    price(p.Price),
			Source:   string(p.Source),
			Holders:  p.Holders,
			Error:    cell(p.Error),
		})
	}
	return v
}

// NewResultReport builds the view of a reconciliation result.
func NewResultReport(res *fundmate.Result) *Report {
	return NewReport(res.Report, res.Audit, res.Prices)
}
