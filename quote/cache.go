package quote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Cached memoizes the prices resolved by a service, per instrument and date.
// Prices of past dates never change and do not expire; today's prices expire
// after TTL.
type Cached struct {
	Service fundmate.PriceService
	TTL     time.Duration

	items *cache.Cache
}

// NewCached wraps service with a memo whose today's entries live ttl.
func NewCached(service fundmate.PriceService, ttl time.Duration) *Cached {
	return &Cached{Service: service, TTL: ttl, items: cache.New(ttl, 2*ttl)}
}

func cacheKey(in fundmate.Instrument, on date.Date) string {
	return string(in.Key()) + "@" + on.String()
}

func (c *Cached) Resolve(ctx context.Context, in fundmate.Instrument, on date.Date) (fundmate.Money, error) {
	key := cacheKey(in, on)
	if v, ok := c.items.Get(key); ok {
		return v.(fundmate.Money), nil
	}
	price, err := c.Service.Resolve(ctx, in, on)
	if err != nil {
		return price, err
	}
	ttl := cache.NoExpiration
	if on.IsZero() || !on.Before(date.Today()) {
		ttl = c.TTL
	}
	c.items.Set(key, price, ttl)
	return price, nil
}

// Len returns the number of memoized prices.
func (c *Cached) Len() int { return c.items.ItemCount() }

// cachedPrice is the persisted form of a memoized price.
type cachedPrice struct {
	Amount     string `msgpack:"a"`
	Currency   string `msgpack:"c"`
	Expiration int64  `msgpack:"e"` // unix nano, 0 for never
}

// Save writes the memo to path in msgpack.
func (c *Cached) Save(path string) error {
	items := c.items.Items()
	out := make(map[string]cachedPrice, len(items))
	for k, item := range items {
		m, ok := item.Object.(fundmate.Money)
		if !ok {
			continue
		}
		out[k] = cachedPrice{Amount: m.Decimal().String(), Currency: m.Currency(), Expiration: item.Expiration}
	}
	b, err := msgpack.Marshal(out)
	if err != nil {
		return fmt.Errorf("cannot encode price cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load merges the memo saved at path. A missing file is not an error.
func (c *Cached) Load(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var in map[string]cachedPrice
	if err := msgpack.Unmarshal(b, &in); err != nil {
		return fmt.Errorf("cannot decode price cache %s: %w", path, err)
	}
	now := time.Now()
	for k, p := range in {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			continue
		}
		ttl := cache.NoExpiration
		if p.Expiration > 0 {
			ttl = time.Unix(0, p.Expiration).Sub(now)
			if ttl <= 0 {
				continue
			}
		}
		c.items.Set(k, fundmate.M(amount, p.Currency), ttl)
	}
	return nil
}
