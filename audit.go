package fundmate

import (
	"cmp"
	"slices"

	"github.com/etnz/fundmate/date"
)

// AuditStatus is the outcome of one transaction.
type AuditStatus string

const (
	StatusMatched AuditStatus = "matched" // applied to existing positions
	StatusOpened  AuditStatus = "opened"  // no position matched, a new one was created
	StatusSkipped AuditStatus = "skipped" // unmatched and skipped by policy
)

// LotDelta is the change of one position caused by a transaction.
type LotDelta struct {
	Key         InstrumentKey `json:"key"`
	Description string        `json:"description"`
	Before      Quantity      `json:"before"`
	After       Quantity      `json:"after"`
	Removed     bool          `json:"removed,omitempty"`
}

// AuditRecord traces the application of one transaction.
type AuditRecord struct {
	Row         int           `json:"row"`
	TradeDate   date.Date     `json:"tradeDate"`
	Account     string        `json:"account"`
	Side        Side          `json:"side"`
	Instrument  string        `json:"instrument"`
	Key         InstrumentKey `json:"key,omitempty"`
	Parser      string        `json:"parser,omitempty"`
	Status      AuditStatus   `json:"status"`
	Quantity    Quantity      `json:"quantity"` // signed delta applied to the account
	Cash        Money         `json:"cash"`     // delta applied to the USD bucket
	Lots        []LotDelta    `json:"lots,omitempty"`
	PriceSource PriceSource   `json:"priceSource,omitempty"` // set once prices are refreshed
	Reason      string        `json:"reason,omitempty"`      // why a transaction was skipped
}

// PriceAudit traces the refresh of one distinct instrument.
type PriceAudit struct {
	Key      InstrumentKey `json:"key"`
	Symbol   string        `json:"symbol"`
	Previous Money         `json:"previous"`
	Price    Money         `json:"price"`
	Source   PriceSource   `json:"source"`
	Holders  int           `json:"holders"` // positions updated with this price
	Error    string        `json:"error,omitempty"`
}

// SortAudit orders records by trade date, then source row, then account.
func SortAudit(records []AuditRecord) []AuditRecord {
	slices.SortStableFunc(records, func(a, b AuditRecord) int {
		if c := a.TradeDate.Compare(b.TradeDate); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Row, b.Row); c != 0 {
			return c
		}
		return cmp.Compare(a.Account, b.Account)
	})
	return records
}
