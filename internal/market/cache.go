package market

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/raidenblackout/CTB/internal/logger"
)

const (
	defaultCapacity      = 1000
	defaultMaxRetries    = 2
	defaultTickerTTL     = 10 * time.Second
	defaultRetryInterval = 500 * time.Millisecond

	// fetchHeadroom is how many bars beyond the requested lookback each
	// refresh asks for, so indicator warm-up does not force a refetch.
	fetchHeadroom = 50
)

// Cache deduplicates and caches OHLCV and ticker queries per (symbol,
// timeframe). Concurrent requests for the same key during a refresh collapse
// into a single upstream fetch.
type Cache struct {
	source        DataSource
	log           *logger.Logger
	capacity      int
	maxRetries    uint64
	tickerTTL     time.Duration
	retryInterval time.Duration
	now           func() time.Time

	mu      sync.RWMutex
	entries map[string]*series
	tickers map[string]Ticker

	group singleflight.Group
}

// CacheOption adjusts cache behaviour.
type CacheOption func(*Cache)

// WithCapacity caps how many bars are retained per key.
func WithCapacity(n int) CacheOption {
	return func(c *Cache) { c.capacity = n }
}

// WithMaxRetries sets the per-refresh retry budget.
func WithMaxRetries(n uint64) CacheOption {
	return func(c *Cache) { c.maxRetries = n }
}

// WithTickerTTL sets how long a cached ticker price stays fresh.
func WithTickerTTL(d time.Duration) CacheOption {
	return func(c *Cache) { c.tickerTTL = d }
}

// NewCache creates a market data cache backed by the given source.
func NewCache(source DataSource, log *logger.Logger, opts ...CacheOption) *Cache {
	c := &Cache{
		source:        source,
		log:           log,
		capacity:      defaultCapacity,
		maxRetries:    defaultMaxRetries,
		tickerTTL:     defaultTickerTTL,
		retryInterval: defaultRetryInterval,
		now:           time.Now,
		entries:       make(map[string]*series),
		tickers:       make(map[string]Ticker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a snapshot with at least lookback bars for (symbol, timeframe),
// refreshing from the source only when the cached series is absent, short, or
// its newest bar is older than one timeframe unit.
func (c *Cache) Get(ctx context.Context, symbol, timeframe string, lookback int) (Snapshot, error) {
	step, err := ParseTimeframe(timeframe)
	if err != nil {
		return Snapshot{}, err
	}
	key := symbol + "|" + timeframe

	if snap, ok := c.cached(key, symbol, timeframe, step, lookback); ok {
		return snap, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A coalesced caller may arrive after the refresh completed.
		if snap, ok := c.cached(key, symbol, timeframe, step, lookback); ok {
			return snap, nil
		}
		return c.refresh(ctx, key, symbol, timeframe, lookback)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// Price returns the latest traded price for a symbol, cached for the ticker
// TTL with the same coalescing as Get.
func (c *Cache) Price(ctx context.Context, symbol string) (float64, error) {
	c.mu.RLock()
	t, ok := c.tickers[symbol]
	c.mu.RUnlock()
	if ok && c.now().Sub(t.Timestamp) <= c.tickerTTL {
		return t.Last, nil
	}

	v, err, _ := c.group.Do("ticker|"+symbol, func() (interface{}, error) {
		c.mu.RLock()
		t, ok := c.tickers[symbol]
		c.mu.RUnlock()
		if ok && c.now().Sub(t.Timestamp) <= c.tickerTTL {
			return t.Last, nil
		}

		var ticker Ticker
		op := func() error {
			fetched, err := c.source.FetchTicker(ctx, symbol)
			if err != nil {
				return err
			}
			ticker = fetched
			return nil
		}
		if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
			c.log.Warn("ticker fetch failed",
				zap.String("symbol", symbol),
				zap.Error(err))
			return nil, errors.Join(ErrDataUnavailable, err)
		}
		if ticker.Timestamp.IsZero() {
			ticker.Timestamp = c.now()
		}
		c.mu.Lock()
		c.tickers[symbol] = ticker
		c.mu.Unlock()
		return ticker.Last, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (c *Cache) cached(key, symbol, timeframe string, step time.Duration, lookback int) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	if !ok || s.len() < lookback {
		return Snapshot{}, false
	}
	newest, ok := s.newestTime()
	if !ok || c.now().Sub(newest) > step {
		return Snapshot{}, false
	}
	return Snapshot{Symbol: symbol, Timeframe: timeframe, Bars: s.view(lookback)}, true
}

func (c *Cache) refresh(ctx context.Context, key, symbol, timeframe string, lookback int) (Snapshot, error) {
	limit := lookback + fetchHeadroom
	var bars []Bar
	op := func() error {
		fetched, err := c.source.FetchOHLCV(ctx, symbol, timeframe, limit)
		if err != nil {
			return err
		}
		bars = fetched
		return nil
	}
	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		c.log.Warn("market data fetch failed",
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe),
			zap.Error(err))
		return Snapshot{}, errors.Join(ErrDataUnavailable, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[key]
	if !ok {
		s = newSeries(c.capacity)
		c.entries[key] = s
	}
	s.merge(bars)
	return Snapshot{Symbol: symbol, Timeframe: timeframe, Bars: s.view(lookback)}, nil
}

func (c *Cache) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	return backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)
}
