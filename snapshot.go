package fundmate

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/etnz/fundmate/date"
	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency of the cash bucket that trade amounts settle in.
const BaseCurrency = "USD"

// Cash is a cash ledger: currency -> amount.
type Cash map[string]decimal.Decimal

// Add adds amount to the currency bucket.
func (c Cash) Add(m Money) {
	cur := m.Currency()
	c[cur] = c[cur].Add(m.Decimal())
}

// Get returns the balance of a currency.
func (c Cash) Get(cur string) Money { return M(c[strings.ToUpper(cur)], cur) }

// Currencies returns the currencies in alphabetical order.
func (c Cash) Currencies() []string { return slices.Sorted(maps.Keys(c)) }

// Clone returns a copy.
func (c Cash) Clone() Cash {
	if c == nil {
		return Cash{}
	}
	return maps.Clone(c)
}

// AccountSnapshot is the dated state of one broker account: positions and
// cash. Snapshots are immutable once persisted, reconciliation produces new
// ones.
type AccountSnapshot struct {
	Broker    string
	Account   string
	Date      date.Date
	Positions []*Position
	Cash      Cash
}

// ID is "broker/account", or the broker alone when both are the same.
func (a *AccountSnapshot) ID() string {
	if a.Account == "" || strings.EqualFold(a.Account, a.Broker) {
		return a.Broker
	}
	return a.Broker + "/" + a.Account
}

// Clone returns a deep copy.
func (a *AccountSnapshot) Clone() *AccountSnapshot {
	c := &AccountSnapshot{
		Broker:    a.Broker,
		Account:   a.Account,
		Date:      a.Date,
		Positions: make([]*Position, len(a.Positions)),
		Cash:      a.Cash.Clone(),
	}
	for i, p := range a.Positions {
		c.Positions[i] = p.Clone()
	}
	return c
}

// remove drops p, keeping the order of the other positions.
func (a *AccountSnapshot) remove(p *Position) {
	a.Positions = slices.DeleteFunc(a.Positions, func(x *Position) bool { return x == p })
}

// classify computes derived attributes of every position.
func (a *AccountSnapshot) classify(reg *Registry) error {
	for _, p := range a.Positions {
		if err := p.classify(reg); err != nil {
			return fmt.Errorf("account %s: %w", a.ID(), err)
		}
	}
	return nil
}

func (a *AccountSnapshot) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("broker", a.Broker)
	w.Optional("account", a.Account)
	w.Append("date", a.Date)
	positions := a.Positions
	if positions == nil {
		positions = []*Position{}
	}
	w.Append("positions", positions)
	cash := a.Cash
	if cash == nil {
		cash = Cash{}
	}
	w.Append("cash", cash)
	return w.MarshalJSON()
}

func (a *AccountSnapshot) UnmarshalJSON(b []byte) error {
	var j struct {
		Broker    string      `json:"broker"`
		Account   string      `json:"account"`
		Date      date.Date   `json:"date"`
		Positions []*Position `json:"positions"`
		Cash      Cash        `json:"cash"`
	}
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*a = AccountSnapshot{Broker: j.Broker, Account: j.Account, Date: j.Date, Positions: j.Positions, Cash: j.Cash}
	if a.Cash == nil {
		a.Cash = Cash{}
	}
	return nil
}

// Portfolio is the set of account snapshots as of a date.
type Portfolio struct {
	Date     date.Date          `json:"date"`
	Accounts []*AccountSnapshot `json:"accounts"`
}

// NewPortfolio returns an empty portfolio as of on.
func NewPortfolio(on date.Date) *Portfolio { return &Portfolio{Date: on} }

// Account returns the account snapshot, matching broker and account case
// insensitively, or nil.
func (p *Portfolio) Account(broker, account string) *AccountSnapshot {
	if account == "" {
		account = broker
	}
	for _, a := range p.Accounts {
		acc := a.Account
		if acc == "" {
			acc = a.Broker
		}
		if strings.EqualFold(a.Broker, broker) && strings.EqualFold(acc, account) {
			return a
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p *Portfolio) Clone() *Portfolio {
	c := &Portfolio{Date: p.Date, Accounts: make([]*AccountSnapshot, len(p.Accounts))}
	for i, a := range p.Accounts {
		c.Accounts[i] = a.Clone()
	}
	return c
}

func (p *Portfolio) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("date", p.Date)
	accounts := p.Accounts
	if accounts == nil {
		accounts = []*AccountSnapshot{}
	}
	w.Append("accounts", accounts)
	return w.MarshalJSON()
}

// Sort orders accounts by broker then account, case insensitively.
func (p *Portfolio) Sort() {
	slices.SortStableFunc(p.Accounts, func(a, b *AccountSnapshot) int {
		if c := strings.Compare(strings.ToUpper(a.Broker), strings.ToUpper(b.Broker)); c != 0 {
			return c
		}
		return strings.Compare(strings.ToUpper(a.Account), strings.ToUpper(b.Account))
	})
}

// Classify parses every position description with reg. It must run once
// after a snapshot is decoded from an external source.
func (p *Portfolio) Classify(reg *Registry) error {
	for _, a := range p.Accounts {
		if err := a.classify(reg); err != nil {
			return err
		}
	}
	return nil
}

// Positions returns the number of positions across accounts.
func (p *Portfolio) Positions() int {
	n := 0
	for _, a := range p.Accounts {
		n += len(a.Positions)
	}
	return n
}

// TotalCash sums cash per currency across accounts.
func (p *Portfolio) TotalCash() Cash {
	total := Cash{}
	for _, a := range p.Accounts {
		for cur, amount := range a.Cash {
			total[cur] = total[cur].Add(amount)
		}
	}
	return total
}
