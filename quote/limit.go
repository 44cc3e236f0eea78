package quote

import (
	"context"
	"fmt"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"golang.org/x/time/rate"
)

// Limited throttles calls to a service that rejects bursts (HTTP 429).
type Limited struct {
	Service fundmate.PriceService
	Limiter *rate.Limiter
}

// NewLimited allows rps calls per second to service, with bursts of burst.
func NewLimited(service fundmate.PriceService, rps float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{Service: service, Limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *Limited) Resolve(ctx context.Context, in fundmate.Instrument, on date.Date) (fundmate.Money, error) {
	if err := l.Limiter.Wait(ctx); err != nil {
		return fundmate.Money{}, fmt.Errorf("rate limit for %s: %w", in.Key(), err)
	}
	return l.Service.Resolve(ctx, in, on)
}
