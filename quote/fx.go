package quote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// FXRates looks up currency exchange rates from a JSON endpoint such as
// exchangerate.host:
//
//	https://api.exchangerate.host/convert?access_key=KEY&from={from}&to={to}&amount=1&date={date}
//
// answering {"success": true, "result": 0.1277}. Rates are memoized per day.
type FXRates struct {
	URL    string
	Path   string       // JSONPath of the rate, "$.result" by default
	Client *http.Client // http.DefaultClient when nil

	memo *cache.Cache
}

// NewFXRates returns an FX source on the URL template.
func NewFXRates(url string, client *http.Client) *FXRates {
	return &FXRates{URL: url, Client: client, memo: cache.New(24*time.Hour, time.Hour)}
}

// Rate returns the number of units of to for one unit of from.
func (f *FXRates) Rate(ctx context.Context, from, to string, on date.Date) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	key := from + to + on.String()
	if f.memo != nil {
		if v, ok := f.memo.Get(key); ok {
			return v.(decimal.Decimal), nil
		}
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	addr := expand(f.URL, map[string]string{"from": from, "to": to, "date": on.String()})
	var jobj any
	if err := getJSON(ctx, client, addr, &jobj); err != nil {
		return decimal.Zero, fmt.Errorf("fx %s/%s: %w", from, to, err)
	}
	if m, ok := jobj.(map[string]any); ok {
		if success, ok := m["success"].(bool); ok && !success {
			return decimal.Zero, fmt.Errorf("fx %s/%s: source reported a failure: %v", from, to, m["error"])
		}
	}
	path := f.Path
	if path == "" {
		path = "$.result"
	}
	rate, err := number(jobj, path)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fx %s/%s: %w", from, to, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fx %s/%s: invalid rate %v", from, to, rate)
	}
	if f.memo != nil {
		f.memo.Set(key, rate, cache.DefaultExpiration)
	}
	return rate, nil
}

// Convert expresses m in currency to.
func (f *FXRates) Convert(ctx context.Context, m fundmate.Money, to string, on date.Date) (fundmate.Money, error) {
	rate, err := f.Rate(ctx, m.Currency(), to, on)
	if err != nil {
		return fundmate.Money{}, err
	}
	return m.In(to, rate), nil
}

// Total sums a cash ledger in currency to.
func (f *FXRates) Total(ctx context.Context, cash fundmate.Cash, to string, on date.Date) (fundmate.Money, error) {
	total := fundmate.M(0, to)
	for _, cur := range cash.Currencies() {
		m, err := f.Convert(ctx, cash.Get(cur), to, on)
		if err != nil {
			return fundmate.Money{}, err
		}
		total = total.Add(m)
	}
	return total, nil
}
