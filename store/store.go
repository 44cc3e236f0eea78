// Package store persists dated portfolio snapshots and the audit trail of
// the runs that produced them.
//
// Two backends implement Store: a folder of JSON files, one directory per
// date, and a SQLite database. Both write a snapshot atomically: a failed
// Save leaves the previous content of that date untouched.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no snapshot exists for a date.
var ErrNotFound = errors.New("snapshot not found")

// Store persists portfolio snapshots by date.
type Store interface {
	// Save writes p as the snapshot of p.Date, replacing any previous one.
	Save(ctx context.Context, p *fundmate.Portfolio) error
	// Load reads the snapshot of a date.
	Load(ctx context.Context, on date.Date) (*fundmate.Portfolio, error)
	// Dates lists the stored dates in ascending order.
	Dates(ctx context.Context) ([]date.Date, error)
	// SaveAudit writes the audit trail of the run that produced the snapshot of on.
	SaveAudit(ctx context.Context, on date.Date, runID string, records []fundmate.AuditRecord) error
	// LoadAudit reads the audit trail stored for a date.
	LoadAudit(ctx context.Context, on date.Date) ([]fundmate.AuditRecord, error)
	Close() error
}

// Open opens the store kind ("file" or "sqlite") at location, a directory
// or a database path.
func Open(kind, location string, reg *fundmate.Registry, log zerolog.Logger) (Store, error) {
	switch strings.ToLower(kind) {
	case "", "file":
		return NewFileStore(location, reg, log)
	case "sqlite":
		return OpenSQLite(location, reg, log)
	}
	return nil, fmt.Errorf("unknown store %q", kind)
}

// Latest returns the most recent stored date.
func Latest(ctx context.Context, s Store) (date.Date, error) {
	dates, err := s.Dates(ctx)
	if err != nil {
		return date.Date{}, err
	}
	if len(dates) == 0 {
		return date.Date{}, fmt.Errorf("%w: the store is empty", ErrNotFound)
	}
	return dates[len(dates)-1], nil
}

// LatestBefore returns the most recent stored date strictly before target,
// the natural base of a run updating the portfolio to target.
func LatestBefore(ctx context.Context, s Store, target date.Date) (date.Date, error) {
	dates, err := s.Dates(ctx)
	if err != nil {
		return date.Date{}, err
	}
	i, _ := slices.BinarySearchFunc(dates, target, date.Date.Compare)
	if i == 0 {
		return date.Date{}, fmt.Errorf("%w: nothing stored before %s", ErrNotFound, target)
	}
	return dates[i-1], nil
}

// IsMoneyMarketFund reports whether a position description names a money
// market fund.
func IsMoneyMarketFund(description string) bool {
	return strings.Contains(strings.ToLower(description), "money market fund")
}

// ReclassifyMMF moves money market fund holdings into the cash of their
// account, at market value in the price currency. It returns the number of
// positions moved. p is modified in place.
func ReclassifyMMF(p *fundmate.Portfolio, log zerolog.Logger) int {
	n := 0
	for _, a := range p.Accounts {
		kept := a.Positions[:0]
		for _, pos := range a.Positions {
			if pos.IsOption() || !IsMoneyMarketFund(pos.Description) {
				kept = append(kept, pos)
				continue
			}
			value := pos.MarketValue()
			if a.Cash == nil {
				a.Cash = fundmate.Cash{}
			}
			a.Cash.Add(value)
			n++
			log.Info().Str("account", a.ID()).Str("symbol", pos.Symbol).Stringer("value", value).Msg("money market fund reclassified to cash")
		}
		clear(a.Positions[len(kept):])
		a.Positions = kept
	}
	return n
}

// holderStore is implemented by stores able to query quantities directly.
type holderStore interface {
	Holders(ctx context.Context, key fundmate.InstrumentKey) (map[date.Date]fundmate.Quantity, error)
}

// Holders returns, per stored date, the total quantity of an instrument
// across accounts. Dates where it was not held are absent.
func Holders(ctx context.Context, s Store, key fundmate.InstrumentKey) (map[date.Date]fundmate.Quantity, error) {
	if h, ok := s.(holderStore); ok {
		return h.Holders(ctx, key)
	}
	dates, err := s.Dates(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[date.Date]fundmate.Quantity)
	for _, on := range dates {
		p, err := s.Load(ctx, on)
		if err != nil {
			return nil, err
		}
		for _, a := range p.Accounts {
			for _, pos := range a.Positions {
				if pos.Key() == key {
					out[on] = out[on].Add(pos.Quantity)
				}
			}
		}
	}
	return out, nil
}
