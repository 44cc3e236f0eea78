// Package quote implements fundmate.PriceService on top of market data
// sources: Yahoo Finance, generic JSON http endpoints, and the wrappers
// composing them (cache, rate limiting, fallback chain).
package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
)

// Currency returns the quotation currency of an instrument: HKD for Hong Kong
// listings and contracts, USD otherwise. HK contracts have numeric
// underlyings or HKATS codes with 1000 shares per contract.
func Currency(in fundmate.Instrument) string {
	if o := in.Option; o != nil {
		if allDigits(o.Underlying) || o.Multiplier.IntPart() == 1000 {
			return "HKD"
		}
		return "USD"
	}
	if strings.HasSuffix(in.Symbol, ".HK") {
		return "HKD"
	}
	return "USD"
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Chain tries each service in turn and returns the first price found.
type Chain []fundmate.PriceService

func (c Chain) Resolve(ctx context.Context, in fundmate.Instrument, on date.Date) (fundmate.Money, error) {
	var errs []error
	for _, s := range c {
		price, err := s.Resolve(ctx, in, on)
		if err == nil {
			return price, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return fundmate.Money{}, fmt.Errorf("%w: no price service for %s", fundmate.ErrPriceNotFound, in.Key())
	}
	return fundmate.Money{}, errors.Join(errs...)
}

// Resolver returns an UnderlyingResolver reading a static numeric code to
// HKATS code table, such as {"0700": "TCH", "9988": "ALB"}.
func Resolver(table map[string]string) fundmate.UnderlyingResolver {
	return func(numeric string) (string, error) {
		if code, ok := table[numeric]; ok {
			return code, nil
		}
		if code, ok := table[strings.TrimLeft(numeric, "0")]; ok {
			return code, nil
		}
		return "", fmt.Errorf("no HKATS code for %s", numeric)
	}
}
