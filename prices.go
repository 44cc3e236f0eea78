package fundmate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/etnz/fundmate/date"
	"github.com/rs/zerolog"
)

// PriceService resolves the unit price of an instrument as of a date.
// Implementations return an error wrapping ErrPriceNotFound when the
// instrument is unknown to them.
type PriceService interface {
	Resolve(ctx context.Context, in Instrument, on date.Date) (Money, error)
}

// PriceServiceFunc adapts a function to PriceService.
type PriceServiceFunc func(ctx context.Context, in Instrument, on date.Date) (Money, error)

func (f PriceServiceFunc) Resolve(ctx context.Context, in Instrument, on date.Date) (Money, error) {
	return f(ctx, in, on)
}

// Default settings of PriceRefresher.
const (
	DefaultPriceWorkers = 3
	DefaultPriceTimeout = 10 * time.Second
)

// PriceRefresher re-prices the positions of a portfolio.
//
// Each distinct instrument is looked up once, whatever the number of accounts
// holding it. Lookups run on a bounded pool, each with its own timeout. A
// failed lookup keeps the previous price and flags it as stale.
type PriceRefresher struct {
	Service PriceService
	Workers int           // concurrent lookups, DefaultPriceWorkers when 0
	Timeout time.Duration // per lookup, DefaultPriceTimeout when 0
	Logger  zerolog.Logger
}

type priceJob struct {
	key InstrumentKey
	in  Instrument
}

type priceResult struct {
	price Money
	err   error
}

// Refresh returns a copy of p with refreshed prices, and one PriceAudit per
// distinct instrument, in order of first appearance.
func (r *PriceRefresher) Refresh(ctx context.Context, p *Portfolio, on date.Date) (*Portfolio, []PriceAudit) {
	out := p.Clone()

	var jobs []priceJob
	seen := make(map[InstrumentKey]int)
	for _, a := range out.Accounts {
		for _, pos := range a.Positions {
			k := pos.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = len(jobs)
			jobs = append(jobs, priceJob{key: k, in: pos.Instrument()})
		}
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultPriceTimeout
	}
	workers := r.Workers
	if workers <= 0 {
		workers = DefaultPriceWorkers
	}
	results := runPool(ctx, workers, jobs, func(ctx context.Context, j priceJob) priceResult {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		price, err := r.Service.Resolve(ctx, j.in, on)
		if err == nil && !price.IsPositive() {
			err = fmt.Errorf("%w: non positive price %v", ErrPriceNotFound, price.Decimal())
		}
		if err != nil {
			err = &PriceUnavailableError{Key: j.key, Err: err}
		}
		return priceResult{price: price, err: err}
	})

	// scatter, sequentially.
	audits := make([]PriceAudit, len(jobs))
	for i, j := range jobs {
		audits[i] = PriceAudit{Key: j.key, Symbol: j.in.Symbol}
		if err := results[i].err; err != nil {
			audits[i].Source = SourceStale
			audits[i].Error = err.Error()
			r.Logger.Warn().Err(err).Str("key", string(j.key)).Msg("price refresh failed, keeping previous price")
		} else {
			audits[i].Source = SourceResolved
			audits[i].Price = results[i].price
		}
	}
	for _, a := range out.Accounts {
		for _, pos := range a.Positions {
			i := seen[pos.Key()]
			audit := &audits[i]
			if audit.Holders == 0 {
				audit.Previous = pos.Price
			}
			audit.Holders++
			if audit.Source == SourceStale {
				pos.PriceSource = SourceStale
				if audit.Price.IsZero() {
					audit.Price = pos.Price
				}
				continue
			}
			pos.Price = audit.Price
			pos.PriceSource = SourceResolved
		}
	}
	return out, audits
}

// IsPriceNotFound reports whether err means the instrument has no price.
func IsPriceNotFound(err error) bool { return errors.Is(err, ErrPriceNotFound) }
