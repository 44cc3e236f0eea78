package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
)

// Converter expresses an amount in another currency, as of a date.
type Converter interface {
	Convert(ctx context.Context, m fundmate.Money, to string, on date.Date) (fundmate.Money, error)
}

// ExportPositions writes one CSV line per position with its market value in
// the price currency and in USD. A nil fx leaves the USD column empty for
// other currencies.
func ExportPositions(ctx context.Context, w io.Writer, p *fundmate.Portfolio, fx Converter) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"date", "broker", "account", "key", "symbol", "description", "quantity", "price", "currency", "price_source", "value", "value_usd"})
	for _, a := range p.Accounts {
		for _, pos := range a.Positions {
			value := pos.MarketValue()
			usd, ok, err := inUSD(ctx, fx, value, p.Date)
			if err != nil {
				return fmt.Errorf("position %s of %s: %w", pos.Key(), a.ID(), err)
			}
			cw.Write([]string{
				p.Date.String(), a.Broker, a.Account, string(pos.Key()), pos.Symbol, pos.Description,
				pos.Quantity.String(), pos.Price.Decimal().String(), pos.Price.Currency(), string(pos.PriceSource),
				value.Decimal().StringFixed(2), fixed(usd, ok),
			})
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCash writes one CSV line per account and currency, plus the account
// total in USD.
func ExportCash(ctx context.Context, w io.Writer, p *fundmate.Portfolio, fx Converter) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"date", "broker", "account", "currency", "amount", "usd"})
	for _, a := range p.Accounts {
		total := fundmate.M(0, fundmate.BaseCurrency)
		complete := true
		for _, cur := range a.Cash.Currencies() {
			m := a.Cash.Get(cur)
			usd, ok, err := inUSD(ctx, fx, m, p.Date)
			if err != nil {
				return fmt.Errorf("cash %s of %s: %w", cur, a.ID(), err)
			}
			if ok {
				total = total.Add(usd)
			} else {
				complete = false
			}
			cw.Write([]string{p.Date.String(), a.Broker, a.Account, cur, m.Decimal().StringFixed(2), fixed(usd, ok)})
		}
		if complete {
			cw.Write([]string{p.Date.String(), a.Broker, a.Account, "TOTAL", "", total.Decimal().StringFixed(2)})
		}
	}
	cw.Flush()
	return cw.Error()
}

// inUSD converts m, ok is false when no converter is available.
func inUSD(ctx context.Context, fx Converter, m fundmate.Money, on date.Date) (fundmate.Money, bool, error) {
	if m.Currency() == fundmate.BaseCurrency {
		return m, true, nil
	}
	if fx == nil {
		return fundmate.Money{}, false, nil
	}
	usd, err := fx.Convert(ctx, m, fundmate.BaseCurrency, on)
	if err != nil {
		return fundmate.Money{}, false, err
	}
	return usd, true, nil
}

func fixed(m fundmate.Money, ok bool) string {
	if !ok {
		return ""
	}
	return m.Decimal().StringFixed(2)
}
