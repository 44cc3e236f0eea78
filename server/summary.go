package server

import (
	"context"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/etnz/fundmate/store"
)

// Summary is the digest of a snapshot served by /api/summary/{date}.
type Summary struct {
	Date      date.Date        `json:"date"`
	Positions int              `json:"positions"`
	Options   int              `json:"options"`
	Stale     int              `json:"stale"` // positions whose price could not be refreshed
	Cash      fundmate.Cash    `json:"cash"`
	CashUSD   *fundmate.Money  `json:"cashUsd,omitempty"`
	Accounts  []AccountSummary `json:"accounts"`
}

// AccountSummary is the digest of one account.
type AccountSummary struct {
	ID        string          `json:"id"`
	Positions int             `json:"positions"`
	Cash      fundmate.Cash   `json:"cash"`
	CashUSD   *fundmate.Money `json:"cashUsd,omitempty"`
}

// Summarize computes the digest of p. USD totals need fx; on a conversion
// error the summary is returned without them, along with the error.
func Summarize(ctx context.Context, p *fundmate.Portfolio, fx store.Converter) (*Summary, error) {
	s := &Summary{Date: p.Date, Positions: p.Positions(), Cash: p.TotalCash(), Accounts: []AccountSummary{}}
	var errs error
	for _, a := range p.Accounts {
		for _, pos := range a.Positions {
			if pos.IsOption() {
				s.Options++
			}
			if pos.PriceSource == fundmate.SourceStale {
				s.Stale++
			}
		}
		acc := AccountSummary{ID: a.ID(), Positions: len(a.Positions), Cash: a.Cash}
		if acc.Cash == nil {
			acc.Cash = fundmate.Cash{}
		}
		if fx != nil && errs == nil {
			acc.CashUSD, errs = total(ctx, fx, a.Cash, p.Date)
		}
		s.Accounts = append(s.Accounts, acc)
	}
	if fx != nil && errs == nil {
		s.CashUSD, errs = total(ctx, fx, s.Cash, p.Date)
	}
	if errs != nil {
		s.CashUSD = nil
		for i := range s.Accounts {
			s.Accounts[i].CashUSD = nil
		}
	}
	return s, errs
}

func total(ctx context.Context, fx store.Converter, cash fundmate.Cash, on date.Date) (*fundmate.Money, error) {
	sum := fundmate.M(0, fundmate.BaseCurrency)
	for _, cur := range cash.Currencies() {
		m, err := fx.Convert(ctx, cash.Get(cur), fundmate.BaseCurrency, on)
		if err != nil {
			return nil, err
		}
		sum = sum.Add(m)
	}
	return &sum, nil
}
