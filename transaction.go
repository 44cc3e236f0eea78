package fundmate

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/etnz/fundmate/date"
)

// Side is the direction of a trade.
type Side string

const (
	Buy      Side = "BUY"      // opens or adds to a long position
	Sell     Side = "SELL"     // reduces a long position
	BuyCover Side = "BUYCOVER" // reduces a short position
)

// sideSynonyms maps normalized broker spellings (blanks removed, upper case)
// to a Side.
var sideSynonyms = map[string]Side{
	"BUY":        Buy,
	"B":          Buy,
	"BOT":        Buy,
	"BOUGHT":     Buy,
	"SELL":       Sell,
	"S":          Sell,
	"SLD":        Sell,
	"SOLD":       Sell,
	"SELLSHORT":  Sell,
	"BUYCOVER":   BuyCover,
	"BUYTOCOVER": BuyCover,
	"COVER":      BuyCover,
	"BC":         BuyCover,
}

// ParseSide normalizes a broker side. Unknown values are rejected.
func ParseSide(s string) (Side, error) {
	norm := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if side, ok := sideSynonyms[norm]; ok {
		return side, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Transaction is one validated trade confirmation line.
type Transaction struct {
	Row        int       `json:"row"` // 1-based position in the source, breaks date ties
	TradeDate  date.Date `json:"tradeDate"`
	Instrument string    `json:"instrument"` // raw instrument text
	Side       Side      `json:"side"`
	Quantity   Quantity  `json:"quantity"` // unsigned
	AvgPrice   Money     `json:"avgPrice"`
	AmountUSD  Money     `json:"amountUSD"` // signed cash impact, authoritative
	Broker     string    `json:"broker"`
	Account    string    `json:"account,omitempty"`
	Currency   string    `json:"currency"`
	Market     string    `json:"market,omitempty"`
}

// Validate checks the invariants of a transaction.
func (t Transaction) Validate() error {
	switch {
	case t.TradeDate.IsZero():
		return &ValidationError{Row: t.Row, Field: ColTradeDate, Reason: "missing"}
	case strings.TrimSpace(t.Instrument) == "":
		return &ValidationError{Row: t.Row, Field: ColStockCode, Reason: "missing"}
	case t.Side != Buy && t.Side != Sell && t.Side != BuyCover:
		return &ValidationError{Row: t.Row, Field: ColSide, Value: string(t.Side), Reason: "unknown side"}
	case !t.Quantity.IsPositive():
		return &ValidationError{Row: t.Row, Field: ColQuantity, Value: t.Quantity.String(), Reason: "must be positive"}
	case strings.TrimSpace(t.Broker) == "":
		return &ValidationError{Row: t.Row, Field: ColBroker, Reason: "missing"}
	case t.AmountUSD.Currency() != BaseCurrency:
		return &ValidationError{Row: t.Row, Field: ColAmountUSD, Value: t.AmountUSD.Currency(), Reason: "must be in " + BaseCurrency}
	}
	return nil
}

// AccountName returns the account, defaulting to the broker.
func (t Transaction) AccountName() string {
	if t.Account != "" {
		return t.Account
	}
	return t.Broker
}

// SortTransactions orders transactions by trade date, ties by source row.
// The input is not modified.
func SortTransactions(txs []Transaction) []Transaction {
	sorted := slices.Clone(txs)
	slices.SortStableFunc(sorted, func(a, b Transaction) int {
		if c := a.TradeDate.Compare(b.TradeDate); c != 0 {
			return c
		}
		return cmp.Compare(a.Row, b.Row)
	})
	return sorted
}
