package fundmate

import "slices"

// Matcher finds the positions of an account a transaction applies to.
type Matcher struct {
	Registry *Registry
	Aliases  AliasTable // may be nil
}

// NewMatcher returns a matcher using reg and aliases.
func NewMatcher(reg *Registry, aliases AliasTable) *Matcher {
	return &Matcher{Registry: reg, Aliases: aliases}
}

// FindCandidates parses the transaction instrument and returns the matching
// positions of account, best match first. An empty result means the
// transaction is unmatched.
//
// Options match on underlying, right and expiry, and on strike on the
// StrikeTolerance grid; any difference excludes the position. Equities match
// on the normalized symbol or description, then through the alias table.
//
// Several candidates are ordered oldest lot first (FIFO): by acquisition date,
// lots of unknown date first, then by expiry, then by snapshot order.
func (m *Matcher) FindCandidates(tx Transaction, account *AccountSnapshot) (Instrument, []*Position, error) {
	in, err := m.Registry.Parse(tx.Instrument)
	if err != nil {
		return in, nil, err
	}
	if account == nil {
		return in, nil, nil
	}
	var found []*Position
	if in.Option != nil {
		for _, p := range account.Positions {
			if p.Option != nil && p.Option.SameContract(*in.Option) {
				found = append(found, p)
			}
		}
	} else {
		key := in.Key()
		for _, p := range account.Positions {
			if p.Option == nil && (p.Key() == key || equityKey(p.Description) == key) {
				found = append(found, p)
			}
		}
		if len(found) == 0 {
			for _, p := range account.Positions {
				if p.Option == nil && m.Aliases.Equivalent(tx.Broker, in.Symbol, NormalizeSymbol(p.Symbol)) {
					found = append(found, p)
				}
			}
		}
	}
	sortFIFO(found)
	return in, found, nil
}

// equityKey is the key of an equity text, empty for no text.
func equityKey(text string) InstrumentKey {
	if text == "" {
		return ""
	}
	return InstrumentKey("EQ:" + NormalizeSymbol(text))
}

// sortFIFO orders lots oldest first. The sort is stable so lots of the same
// age keep their snapshot order.
func sortFIFO(lots []*Position) {
	slices.SortStableFunc(lots, func(a, b *Position) int {
		if c := a.Acquired.Compare(b.Acquired); c != 0 {
			return c
		}
		if a.Option != nil && b.Option != nil {
			return a.Option.Expiry.Compare(b.Option.Expiry)
		}
		return 0
	})
}
