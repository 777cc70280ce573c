package dashboard

import (
	"context"
	"fmt"
	"time"
)

// Cached wraps a Querier and keeps each result for a fixed TTL, keyed by
// report, window and limit.
type Cached struct {
	q     Querier
	cache *TTLCache[string, any]
}

// NewCached creates a caching Querier.
func NewCached(q Querier, ttl time.Duration) *Cached {
	return &Cached{q: q, cache: NewTTLCache[string, any](ttl)}
}

// Purge drops every cached result.
func (c *Cached) Purge() {
	c.cache.Purge()
}

func cached[T any](c *Cached, key string, load func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.cache.Set(key, v)
	return v, nil
}

func (c *Cached) KPIs(ctx context.Context, w Window) (*KPIs, error) {
	return cached(c, "kpis:"+w.String(), func() (*KPIs, error) {
		return c.q.KPIs(ctx, w)
	})
}

func (c *Cached) RevenueTrend(ctx context.Context, w Window) ([]TrendPoint, error) {
	return cached(c, "trend:"+w.String(), func() ([]TrendPoint, error) {
		return c.q.RevenueTrend(ctx, w)
	})
}

func (c *Cached) TopProducts(ctx context.Context, w Window, limit int) ([]ProductRevenue, error) {
	return cached(c, fmt.Sprintf("products:%s:%d", w, limit), func() ([]ProductRevenue, error) {
		return c.q.TopProducts(ctx, w, limit)
	})
}

func (c *Cached) Categories(ctx context.Context, w Window) ([]CategoryRevenue, error) {
	return cached(c, "categories:"+w.String(), func() ([]CategoryRevenue, error) {
		return c.q.Categories(ctx, w)
	})
}

func (c *Cached) Segments(ctx context.Context, w Window) ([]SegmentRevenue, error) {
	return cached(c, "segments:"+w.String(), func() ([]SegmentRevenue, error) {
		return c.q.Segments(ctx, w)
	})
}

func (c *Cached) TopCountries(ctx context.Context, w Window, limit int) ([]CountryRevenue, error) {
	return cached(c, fmt.Sprintf("countries:%s:%d", w, limit), func() ([]CountryRevenue, error) {
		return c.q.TopCountries(ctx, w, limit)
	})
}

func (c *Cached) RecentOrders(ctx context.Context, w Window, limit int) ([]RecentOrder, error) {
	return cached(c, fmt.Sprintf("orders:%s:%d", w, limit), func() ([]RecentOrder, error) {
		return c.q.RecentOrders(ctx, w, limit)
	})
}
