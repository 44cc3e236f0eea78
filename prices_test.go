package fundmate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/etnz/fundmate/date"
	"github.com/rs/zerolog"
)

// fakePrices serves fixed prices and counts lookups per symbol.
type fakePrices struct {
	mu     sync.Mutex
	calls  map[string]int
	prices map[string]Money
}

func (f *fakePrices) Resolve(ctx context.Context, in Instrument, on date.Date) (Money, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[in.Symbol]++
	f.mu.Unlock()
	if in.Symbol == "SLOW" {
		<-ctx.Done()
		return Money{}, ctx.Err()
	}
	p, ok := f.prices[in.Symbol]
	if !ok {
		return Money{}, ErrPriceNotFound
	}
	return p, nil
}

func TestPriceRefresher_Refresh(t *testing.T) {
	ib := account(d("2025-07-18"), 0, position(t, "AAPL", 10, USD(200)), position(t, "MSFT", 5, USD(400)))
	futu := account(d("2025-07-18"), 0, position(t, "AAPL US", 3, USD(199)), position(t, "ZERO", 1, USD(1)))
	futu.Broker = "FUTU"
	p := &Portfolio{Date: d("2025-07-18"), Accounts: []*AccountSnapshot{ib, futu}}

	service := &fakePrices{prices: map[string]Money{"AAPL": USD(210), "ZERO": USD(0)}}
	r := &PriceRefresher{Service: service, Logger: zerolog.Nop()}
	got, audits := r.Refresh(context.Background(), p, d("2025-07-18"))

	if service.calls["AAPL"] != 1 {
		t.Errorf("AAPL looked up %d times, want once across accounts", service.calls["AAPL"])
	}
	if len(audits) != 3 {
		t.Fatalf("Refresh() returned %d price audits, want 3", len(audits))
	}
	aapl := audits[0]
	if aapl.Key != "EQ:AAPL" || aapl.Source != SourceResolved || aapl.Holders != 2 || !aapl.Previous.Equal(USD(200)) {
		t.Errorf("AAPL audit = %+v, want resolved for 2 holders from 200", aapl)
	}
	for _, a := range got.Accounts {
		for _, pos := range a.Positions {
			switch pos.Key() {
			case "EQ:AAPL":
				if !pos.Price.Equal(USD(210)) || pos.PriceSource != SourceResolved {
					t.Errorf("%s AAPL = %v %s, want 210 resolved", a.ID(), pos.Price.Decimal(), pos.PriceSource)
				}
			case "EQ:MSFT":
				if !pos.Price.Equal(USD(400)) || pos.PriceSource != SourceStale {
					t.Errorf("MSFT = %v %s, want the previous 400 marked stale", pos.Price.Decimal(), pos.PriceSource)
				}
			case "EQ:ZERO":
				if !pos.Price.Equal(USD(1)) || pos.PriceSource != SourceStale {
					t.Errorf("ZERO = %v %s, a zero price must not replace the previous one", pos.Price.Decimal(), pos.PriceSource)
				}
			}
		}
	}
	if audits[1].Error == "" {
		t.Errorf("MSFT audit has no error")
	}

	// the input is untouched
	if !p.Accounts[0].Positions[0].Price.Equal(USD(200)) || p.Accounts[0].Positions[0].PriceSource != SourceBroker {
		t.Errorf("Refresh() modified its input")
	}
}

func TestPriceRefresher_Timeout(t *testing.T) {
	p := &Portfolio{Date: d("2025-07-18"), Accounts: []*AccountSnapshot{
		account(d("2025-07-18"), 0, position(t, "SLOW", 1, USD(5)), position(t, "AAPL", 1, USD(200))),
	}}
	r := &PriceRefresher{
		Service: &fakePrices{prices: map[string]Money{"AAPL": USD(210)}},
		Workers: 1,
		Timeout: 10 * time.Millisecond,
		Logger:  zerolog.Nop(),
	}
	start := time.Now()
	got, audits := r.Refresh(context.Background(), p, d("2025-07-18"))
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Refresh() took %v, the lookup timeout was not applied", elapsed)
	}
	if audits[0].Source != SourceStale || audits[0].Error == "" {
		t.Errorf("SLOW audit = %+v, want a stale price", audits[0])
	}
	if got.Accounts[0].Positions[1].PriceSource != SourceResolved {
		t.Errorf("AAPL was not refreshed after a slow lookup")
	}
}

func TestPriceUnavailableError(t *testing.T) {
	err := error(&PriceUnavailableError{Key: "EQ:AAPL", Err: ErrPriceNotFound})
	if !errors.Is(err, ErrPriceUnavailable) || !IsPriceNotFound(err) {
		t.Errorf("PriceUnavailableError does not match both ErrPriceUnavailable and ErrPriceNotFound")
	}
}
