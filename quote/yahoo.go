package quote

import (
	"context"
	"fmt"
	"strings"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
)

// Yahoo resolves prices from Yahoo Finance. Today's prices come from the
// quote endpoint, past prices from the daily history.
type Yahoo struct {
	log zerolog.Logger
}

// NewYahoo creates a new Yahoo Finance price service
func NewYahoo(log zerolog.Logger) *Yahoo {
	return &Yahoo{log: log.With().Str("client", "yahoo").Logger()}
}

// YahooSymbol converts an instrument to its Yahoo ticker. US options use the
// OCC symbology; HK options are not listed by Yahoo.
func YahooSymbol(in fundmate.Instrument) (string, error) {
	if o := in.Option; o != nil {
		if Currency(in) != "USD" {
			return "", fmt.Errorf("%w: yahoo has no HK option %s", fundmate.ErrPriceNotFound, in.Key())
		}
		strike := o.Strike.Mul(decimal.NewFromInt(1000)).IntPart()
		return fmt.Sprintf("%s%s%s%08d", o.Underlying, o.Expiry.Time().Format("060102"), o.Right.Letter(), strike), nil
	}
	// class shares: BRK.B -> BRK-B
	symbol := in.Symbol
	if i := strings.LastIndexByte(symbol, '.'); i > 0 && len(symbol)-i == 2 {
		symbol = symbol[:i] + "-" + symbol[i+1:]
	}
	return symbol, nil
}

type yahooResult struct {
	price float64
	err   error
}

// Resolve implements fundmate.PriceService. The underlying client is not
// context aware: on cancellation the call is abandoned and finishes in the
// background.
func (y *Yahoo) Resolve(ctx context.Context, in fundmate.Instrument, on date.Date) (fundmate.Money, error) {
	symbol, err := YahooSymbol(in)
	if err != nil {
		return fundmate.Money{}, err
	}
	done := make(chan yahooResult, 1)
	go func() {
		price, err := y.fetch(symbol, on)
		done <- yahooResult{price, err}
	}()
	select {
	case <-ctx.Done():
		return fundmate.Money{}, fmt.Errorf("yahoo %s: %w", symbol, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return fundmate.Money{}, r.err
		}
		y.log.Debug().Str("symbol", symbol).Float64("price", r.price).Msg("price resolved")
		return fundmate.M(r.price, Currency(in)), nil
	}
}

func (y *Yahoo) fetch(symbol string, on date.Date) (float64, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to create ticker %s: %w", symbol, err)
	}
	defer t.Close()

	if on.IsZero() || !on.Before(date.Today()) {
		quote, err := t.Quote()
		if err == nil && quote != nil {
			if quote.RegularMarketPrice > 0 {
				return quote.RegularMarketPrice, nil
			}
		}
		// market closed or no quote: the last close will do
	}

	bars, err := t.History(models.HistoryParams{
		Period:     "3mo",
		Interval:   "1d",
		AutoAdjust: false,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get history of %s: %w", symbol, err)
	}
	var last float64
	for _, bar := range bars {
		if !on.IsZero() && date.FromTime(bar.Date).After(on) {
			break
		}
		if bar.Close > 0 {
			last = bar.Close
		}
	}
	if last <= 0 {
		return 0, fmt.Errorf("%w: no yahoo close for %s on %s", fundmate.ErrPriceNotFound, symbol, on)
	}
	return last, nil
}
