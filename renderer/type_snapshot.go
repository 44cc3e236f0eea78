package renderer

import (
	"strings"

	"github.com/etnz/fundmate"
)

// Snapshot is the view of a portfolio rendered by RenderSnapshot.
type Snapshot struct {
	Date      string     `json:"date"`
	Positions int        `json:"positions"`
	Accounts  []Account  `json:"accounts"`
	Cash      []CashLine `json:"cash"` // totals across accounts
}

// Account is one account of a Snapshot.
type Account struct {
	ID        string         `json:"id"`
	Positions []PositionLine `json:"positions"`
	Cash      []CashLine     `json:"cash"`
}

// PositionLine is one position of an Account.
type PositionLine struct {
	Symbol   string `json:"symbol"`
	Key      string `json:"key"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	Source   string `json:"source"`
	Stale    bool   `json:"stale"`
	Value    string `json:"value"`
}

// CashLine is a cash balance.
type CashLine struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// NewSnapshot builds the view of p.
func NewSnapshot(p *fundmate.Portfolio) *Snapshot {
	s := &Snapshot{Date: p.Date.String(), Positions: p.Positions(), Cash: cashLines(p.TotalCash())}
	for _, a := range p.Accounts {
		acc := Account{ID: a.ID(), Cash: cashLines(a.Cash)}
		for _, pos := range a.Positions {
			acc.Positions = append(acc.Positions, PositionLine{
				Symbol:   cell(pos.Symbol),
				Key:      string(pos.Key()),
				Quantity: pos.Quantity.String(),
				Price:    price(pos.Price),
				Source:   string(pos.PriceSource),
				Stale:    pos.PriceSource == fundmate.SourceStale,
				Value:    pos.MarketValue().String(),
			})
		}
		s.Accounts = append(s.Accounts, acc)
	}
	return s
}

func cashLines(c fundmate.Cash) []CashLine {
	var lines []CashLine
	for _, cur := range c.Currencies() {
		lines = append(lines, CashLine{Currency: cur, Amount: c.Get(cur).String()})
	}
	return lines
}

// price keeps every digit of a unit price, option premiums often have more
// than the currency fraction.
func price(m fundmate.Money) string {
	if m.Currency() == "" {
		return m.Decimal().String()
	}
	return m.Decimal().String() + " " + m.Currency()
}

// cell escapes text for a markdown table cell.
func cell(s string) string { return strings.ReplaceAll(s, "|", `\|`) }
