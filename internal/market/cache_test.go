package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raidenblackout/CTB/internal/logger"
)

type fakeSource struct {
	mu         sync.Mutex
	fetchCount atomic.Int64
	bars       []Bar
	barsErr    error
	ticker     Ticker
	tickerErr  error
	delay      time.Duration
}

func (f *fakeSource) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error) {
	f.fetchCount.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.barsErr != nil {
		return nil, f.barsErr
	}
	out := make([]Bar, len(f.bars))
	copy(out, f.bars)
	return out, nil
}

func (f *fakeSource) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	f.fetchCount.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticker, f.tickerErr
}

func recentBars(now time.Time, step time.Duration, n int) []Bar {
	bars := make([]Bar, n)
	for i := 0; i < n; i++ {
		ts := now.Add(-time.Duration(n-1-i) * step)
		bars[i] = Bar{Timestamp: ts, Close: float64(i + 1)}
	}
	return bars
}

func TestCacheGetFetchesOnceWhileFresh(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{bars: recentBars(now, time.Hour, 60)}
	c := NewCache(src, logger.NewNop())
	c.now = func() time.Time { return now }

	snap, err := c.Get(context.Background(), "BTC/USDT", "1h", 30)
	require.NoError(t, err)
	require.Len(t, snap.Bars, 30)
	require.EqualValues(t, 1, src.fetchCount.Load())

	// Second call within the same candle is served from cache.
	_, err = c.Get(context.Background(), "BTC/USDT", "1h", 30)
	require.NoError(t, err)
	require.EqualValues(t, 1, src.fetchCount.Load())
}

func TestCacheGetRefreshesStaleSeries(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{bars: recentBars(now, time.Hour, 60)}
	c := NewCache(src, logger.NewNop())
	c.now = func() time.Time { return now }

	_, err := c.Get(context.Background(), "BTC/USDT", "1h", 30)
	require.NoError(t, err)
	require.EqualValues(t, 1, src.fetchCount.Load())

	// Advance past one timeframe unit; the cached series is now stale.
	later := now.Add(2 * time.Hour)
	c.now = func() time.Time { return later }
	src.mu.Lock()
	src.bars = recentBars(later, time.Hour, 60)
	src.mu.Unlock()

	snap, err := c.Get(context.Background(), "BTC/USDT", "1h", 30)
	require.NoError(t, err)
	require.Len(t, snap.Bars, 30)
	require.EqualValues(t, 2, src.fetchCount.Load())
}

func TestCacheGetCoalescesConcurrentCallers(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{bars: recentBars(now, time.Hour, 60), delay: 50 * time.Millisecond}
	c := NewCache(src, logger.NewNop())
	c.now = func() time.Time { return now }

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := c.Get(context.Background(), "BTC/USDT", "1h", 30)
			require.NoError(t, err)
			require.Len(t, snap.Bars, 30)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, src.fetchCount.Load())
}

func TestCacheGetWrapsSourceFailure(t *testing.T) {
	src := &fakeSource{barsErr: errors.New("boom")}
	c := NewCache(src, logger.NewNop(), WithMaxRetries(0))

	_, err := c.Get(context.Background(), "BTC/USDT", "1h", 30)
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestCachePriceUsesTTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{ticker: Ticker{Symbol: "BTC/USDT", Last: 50000, Timestamp: now}}
	c := NewCache(src, logger.NewNop(), WithTickerTTL(10*time.Second))
	c.now = func() time.Time { return now }

	price, err := c.Price(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Equal(t, 50000.0, price)
	require.EqualValues(t, 1, src.fetchCount.Load())

	_, err = c.Price(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.EqualValues(t, 1, src.fetchCount.Load())

	later := now.Add(time.Minute)
	c.now = func() time.Time { return later }
	src.mu.Lock()
	src.ticker = Ticker{Symbol: "BTC/USDT", Last: 51000, Timestamp: later}
	src.mu.Unlock()

	price, err = c.Price(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Equal(t, 51000.0, price)
	require.EqualValues(t, 2, src.fetchCount.Load())
}
