package fundmate

import (
	"encoding/json"
	"fmt"

	"github.com/etnz/fundmate/date"
	"github.com/shopspring/decimal"
)

// PriceSource tells which stage produced a position's price.
type PriceSource string

const (
	SourceBroker      PriceSource = "broker"      // from the base statement
	SourceTransaction PriceSource = "transaction" // average price of the opening trade
	SourceResolved    PriceSource = "resolved"    // refreshed from the price service
	SourceStale       PriceSource = "stale"       // refresh failed, previous price kept
)

// Position is one holding of one instrument in one account.
//
// A Position is either a plain equity (Option == nil) or an option with a
// complete attribute set. Quantity is signed, negative for shorts, and a
// Position never stays in a snapshot with a zero quantity.
type Position struct {
	Symbol      string            // instrument code as shown by the broker
	Description string            // full raw text, kept for matching
	Quantity    Quantity          // signed
	Price       Money             // unit price, in the price currency
	PriceSource PriceSource       // stage that produced Price
	Option      *OptionAttributes // nil for equities
	Acquired    date.Date         // zero when unknown (base statement lots)

	key InstrumentKey
}

// NewPosition parses text with reg and returns the corresponding position.
func NewPosition(reg *Registry, text string, qty Quantity, price Money, source PriceSource) (*Position, error) {
	p := &Position{Symbol: text, Description: text, Quantity: qty, Price: price, PriceSource: source}
	if err := p.classify(reg); err != nil {
		return nil, err
	}
	return p, nil
}

// positionFromInstrument opens a position for a parsed instrument.
func positionFromInstrument(in Instrument, qty Quantity, price Money, on date.Date) *Position {
	p := &Position{
		Symbol:      in.Symbol,
		Description: in.Text,
		Quantity:    qty,
		Price:       price,
		PriceSource: SourceTransaction,
		Acquired:    on,
	}
	if in.Option != nil {
		o := *in.Option
		p.Option = &o
	}
	p.key = in.Key()
	return p
}

// classify computes the derived attributes. The symbol is the identity; the
// description is only read when the symbol is empty or when only the
// description reads as an option contract. It is called once, when a
// snapshot is loaded.
func (p *Position) classify(reg *Registry) error {
	in, err := p.parse(reg)
	if err != nil {
		return err
	}
	if in.Option != nil {
		o := *in.Option
		p.Option = &o
	} else {
		p.Option = nil
		p.Symbol = in.Symbol
	}
	if p.Description == "" {
		p.Description = in.Text
	}
	p.key = in.Key()
	return nil
}

func (p *Position) parse(reg *Registry) (Instrument, error) {
	if p.Symbol == "" {
		return reg.Parse(p.Description)
	}
	in, err := reg.Parse(p.Symbol)
	if err == nil && in.IsOption() || p.Description == "" || p.Description == p.Symbol {
		return in, err
	}
	desc, derr := reg.Parse(p.Description)
	if derr != nil {
		// an option description no parser can read
		return desc, derr
	}
	if desc.IsOption() {
		return desc, nil
	}
	return in, err
}

// Key returns the instrument identity key.
func (p *Position) Key() InstrumentKey {
	if p.key != "" {
		return p.key
	}
	if p.Option != nil {
		return p.Option.Key()
	}
	return InstrumentKey("EQ:" + NormalizeSymbol(p.Symbol))
}

// Instrument returns the parsed instrument of the position.
func (p *Position) Instrument() Instrument {
	in := Instrument{Text: p.Description, Symbol: NormalizeSymbol(p.Symbol)}
	if p.Option != nil {
		o := *p.Option
		in.Option = &o
		in.Symbol = o.Underlying
	}
	return in
}

// IsOption reports whether the position holds an option contract.
func (p *Position) IsOption() bool { return p.Option != nil }

// Multiplier is the number of underlying units per contract, 1 for equities.
func (p *Position) Multiplier() decimal.Decimal {
	if p.Option != nil {
		return p.Option.Multiplier
	}
	return decimal.NewFromInt(1)
}

// MarketValue is quantity x multiplier x price, in the price currency.
func (p *Position) MarketValue() Money {
	return p.Price.Mul(p.Quantity).Mul(Q(p.Multiplier()))
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	c := *p
	if p.Option != nil {
		o := *p.Option
		c.Option = &o
	}
	return &c
}

// Validate checks the equity XOR option invariant.
func (p *Position) Validate() error {
	if p.Quantity.IsZero() {
		return fmt.Errorf("position %q has a zero quantity", p.Description)
	}
	if p.Option != nil {
		if err := p.Option.Validate(); err != nil {
			return fmt.Errorf("position %q: %w", p.Description, err)
		}
	}
	return nil
}

func (p *Position) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("symbol", p.Symbol)
	w.Optional("description", p.Description)
	w.Append("quantity", p.Quantity)
	w.Append("price", p.Price)
	w.Optional("priceSource", p.PriceSource)
	w.Optional("acquired", p.Acquired.String())
	if p.Option != nil {
		w.Append("option", p.Option)
	}
	return w.MarshalJSON()
}

func (p *Position) UnmarshalJSON(b []byte) error {
	var j struct {
		Symbol      string            `json:"symbol"`
		Description string            `json:"description"`
		Quantity    Quantity          `json:"quantity"`
		Price       Money             `json:"price"`
		PriceSource PriceSource       `json:"priceSource"`
		Acquired    date.Date         `json:"acquired"`
		Option      *OptionAttributes `json:"option"`
	}
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*p = Position{
		Symbol:      j.Symbol,
		Description: j.Description,
		Quantity:    j.Quantity,
		Price:       j.Price,
		PriceSource: j.PriceSource,
		Acquired:    j.Acquired,
		Option:      j.Option,
	}
	return nil
}
