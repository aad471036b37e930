package sentiment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/raidenblackout/CTB/internal/logger"
	"github.com/raidenblackout/CTB/internal/news"
)

const (
	defaultFetchLimit    = 10
	defaultMaxRetries    = 2
	defaultRetryInterval = 500 * time.Millisecond
	snippetLimit         = 500
)

// Score is the aggregated sentiment for one symbol.
type Score struct {
	Symbol string
	// Score is in [-1, 1].
	Score float64
	// SampleCount is how many articles contributed. Zero means no relevant
	// news was found; callers should treat that as "no signal".
	SampleCount int
	ComputedAt  time.Time
}

// Age returns how old the score is.
func (s Score) Age(now time.Time) time.Duration {
	return now.Sub(s.ComputedAt)
}

// Cache deduplicates news fetching and LLM scoring per symbol. A cached score
// is recomputed only once its age exceeds the caller's max age; concurrent
// requests for the same symbol coalesce into one computation.
//
// The reducer is the recency-weighted mean: each article's score (+1/-1/0)
// carries weight 1/(1+ageHours), so an hour-old headline counts twice as much
// as a three-hour-old one.
type Cache struct {
	articles      *news.Aggregator
	analyzer      Analyzer
	log           *logger.Logger
	fetchLimit    int
	maxRetries    uint64
	retryInterval time.Duration
	now           func() time.Time

	mu     sync.RWMutex
	scores map[string]Score

	group singleflight.Group
}

// CacheOption adjusts cache behaviour.
type CacheOption func(*Cache)

// WithFetchLimit caps articles requested per news source.
func WithFetchLimit(n int) CacheOption {
	return func(c *Cache) { c.fetchLimit = n }
}

// WithMaxRetries sets the news-fetch retry budget.
func WithMaxRetries(n uint64) CacheOption {
	return func(c *Cache) { c.maxRetries = n }
}

// NewCache creates a sentiment cache over the given news aggregator and
// analyzer.
func NewCache(articles *news.Aggregator, analyzer Analyzer, log *logger.Logger, opts ...CacheOption) *Cache {
	c := &Cache{
		articles:      articles,
		analyzer:      analyzer,
		log:           log,
		fetchLimit:    defaultFetchLimit,
		maxRetries:    defaultMaxRetries,
		retryInterval: defaultRetryInterval,
		now:           time.Now,
		scores:        make(map[string]Score),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the sentiment score for a symbol (a bare ticker like "BTC"),
// recomputing when the cached score is older than maxAge.
func (c *Cache) Get(ctx context.Context, symbol string, maxAge time.Duration) (Score, error) {
	if s, ok := c.cached(symbol, maxAge); ok {
		return s, nil
	}

	v, err, _ := c.group.Do(symbol, func() (interface{}, error) {
		if s, ok := c.cached(symbol, maxAge); ok {
			return s, nil
		}
		return c.compute(ctx, symbol, maxAge)
	})
	if err != nil {
		return Score{}, err
	}
	return v.(Score), nil
}

func (c *Cache) cached(symbol string, maxAge time.Duration) (Score, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scores[symbol]
	if !ok || s.Age(c.now()) > maxAge {
		return Score{}, false
	}
	return s, true
}

func (c *Cache) compute(ctx context.Context, symbol string, maxAge time.Duration) (Score, error) {
	var fetched []news.Article
	op := func() error {
		articles, err := c.articles.FetchRecent(ctx, []string{symbol}, c.fetchLimit)
		if err != nil {
			return err
		}
		fetched = articles
		return nil
	}
	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		c.log.Warn("news fetch for sentiment failed",
			zap.String("symbol", symbol),
			zap.Error(err))
		return Score{}, errors.Join(ErrSentimentUnavailable, err)
	}

	now := c.now()
	cutoff := now.Add(-maxAge)
	var (
		weightedSum float64
		totalWeight float64
		samples     int
	)
	for _, art := range fetched {
		if art.PublishedAt.Before(cutoff) || !art.MentionsCoin(symbol) {
			continue
		}
		text := art.Title
		if art.ContentSnippet != "" {
			snippet := art.ContentSnippet
			if len(snippet) > snippetLimit {
				snippet = snippet[:snippetLimit]
			}
			text += ". " + snippet
		}
		score, err := c.analyzer.Score(ctx, text, symbol)
		if err != nil {
			c.log.Warn("article scoring failed",
				zap.String("symbol", symbol),
				zap.String("title", art.Title),
				zap.Error(err))
			continue
		}
		// Feeds occasionally carry future publish times; clamp so the
		// weight stays in (0, 1] instead of going negative or infinite.
		ageHours := now.Sub(art.PublishedAt).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		weight := 1.0 / (1.0 + ageHours)
		weightedSum += score * weight
		totalWeight += weight
		samples++
	}

	result := Score{Symbol: symbol, ComputedAt: now}
	if samples > 0 {
		result.Score = weightedSum / totalWeight
		result.SampleCount = samples
	} else if len(fetched) > 0 {
		// Relevant articles existed but every LLM call failed.
		relevant := 0
		for _, art := range fetched {
			if !art.PublishedAt.Before(cutoff) && art.MentionsCoin(symbol) {
				relevant++
			}
		}
		if relevant > 0 {
			return Score{}, fmt.Errorf("%w: no article scored for %s", ErrSentimentUnavailable, symbol)
		}
	}

	c.mu.Lock()
	c.scores[symbol] = result
	c.mu.Unlock()
	return result, nil
}

func (c *Cache) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	return backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)
}
