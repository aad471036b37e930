package sentiment

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raidenblackout/CTB/internal/logger"
	"github.com/raidenblackout/CTB/internal/news"
)

type stubNewsSource struct {
	articles []news.Article
	err      error
	calls    atomic.Int64
}

func (s *stubNewsSource) Name() string { return "stub" }

func (s *stubNewsSource) FetchArticles(ctx context.Context, coins []string, limit int) ([]news.Article, error) {
	s.calls.Add(1)
	return s.articles, s.err
}

type stubAnalyzer struct {
	scores map[string]float64
	err    error
	calls  atomic.Int64
}

func (a *stubAnalyzer) Score(ctx context.Context, text, targetCoin string) (float64, error) {
	a.calls.Add(1)
	if a.err != nil {
		return 0, a.err
	}
	return a.scores[text], nil
}

func newTestCache(src *stubNewsSource, analyzer Analyzer, now time.Time) *Cache {
	agg := news.NewAggregator([]news.Source{src}, logger.NewNop())
	c := NewCache(agg, analyzer, logger.NewNop(), WithMaxRetries(0))
	c.now = func() time.Time { return now }
	return c
}

func TestCacheGetWeighsRecentArticlesMore(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &stubNewsSource{articles: []news.Article{
		{Title: "Bitcoin surges past resistance", PublishedAt: now.Add(-1 * time.Hour), RelatedCoins: []string{"BTC"}},
		{Title: "Bitcoin faces regulatory pressure", PublishedAt: now.Add(-3 * time.Hour), RelatedCoins: []string{"BTC"}},
	}}
	analyzer := &stubAnalyzer{scores: map[string]float64{
		"Bitcoin surges past resistance":     1,
		"Bitcoin faces regulatory pressure": -1,
	}}
	c := newTestCache(src, analyzer, now)

	score, err := c.Get(context.Background(), "BTC", 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, score.SampleCount)
	// Weights: 1/2 for the 1h-old positive, 1/4 for the 3h-old negative.
	want := (0.5 - 0.25) / 0.75
	require.InDelta(t, want, score.Score, 1e-9)
	require.Equal(t, now, score.ComputedAt)
}

func TestCacheGetClampsFutureDatedArticles(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &stubNewsSource{articles: []news.Article{
		{Title: "Bitcoin ETF approval incoming", PublishedAt: now.Add(2 * time.Hour), RelatedCoins: []string{"BTC"}},
		{Title: "Bitcoin trades sideways", PublishedAt: now.Add(-1 * time.Hour), RelatedCoins: []string{"BTC"}},
	}}
	analyzer := &stubAnalyzer{scores: map[string]float64{
		"Bitcoin ETF approval incoming": 1,
		"Bitcoin trades sideways":       0,
	}}
	c := newTestCache(src, analyzer, now)

	score, err := c.Get(context.Background(), "BTC", 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, score.SampleCount)
	// The future-dated article weighs as if just published: weights 1 and 1/2.
	require.InDelta(t, 1.0/1.5, score.Score, 1e-9)
	require.GreaterOrEqual(t, score.Score, 0.0)
}

func TestCacheGetReturnsCachedScoreUntilStale(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &stubNewsSource{articles: []news.Article{
		{Title: "Bitcoin rally continues", PublishedAt: now.Add(-time.Hour), RelatedCoins: []string{"BTC"}},
	}}
	analyzer := &stubAnalyzer{scores: map[string]float64{"Bitcoin rally continues": 1}}
	c := newTestCache(src, analyzer, now)

	_, err := c.Get(context.Background(), "BTC", 6*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, src.calls.Load())

	_, err = c.Get(context.Background(), "BTC", 6*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, src.calls.Load())

	// Older than maxAge forces a recompute.
	later := now.Add(7 * time.Hour)
	c.now = func() time.Time { return later }
	src.articles = []news.Article{
		{Title: "Bitcoin rally continues", PublishedAt: later.Add(-time.Hour), RelatedCoins: []string{"BTC"}},
	}
	_, err = c.Get(context.Background(), "BTC", 6*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 2, src.calls.Load())
}

func TestCacheGetNoRelevantNewsIsZeroSamples(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &stubNewsSource{articles: []news.Article{
		{Title: "Stocks close higher", PublishedAt: now.Add(-time.Hour)},
	}}
	analyzer := &stubAnalyzer{}
	c := newTestCache(src, analyzer, now)

	score, err := c.Get(context.Background(), "BTC", 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, score.SampleCount)
	require.Equal(t, 0.0, score.Score)
	require.EqualValues(t, 0, analyzer.calls.Load())
}

func TestCacheGetIgnoresArticlesOlderThanMaxAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &stubNewsSource{articles: []news.Article{
		{Title: "Bitcoin hits new high", PublishedAt: now.Add(-48 * time.Hour), RelatedCoins: []string{"BTC"}},
	}}
	analyzer := &stubAnalyzer{scores: map[string]float64{"Bitcoin hits new high": 1}}
	c := newTestCache(src, analyzer, now)

	score, err := c.Get(context.Background(), "BTC", 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, score.SampleCount)
}

func TestCacheGetAllScoringFailedIsUnavailable(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &stubNewsSource{articles: []news.Article{
		{Title: "Bitcoin news", PublishedAt: now.Add(-time.Hour), RelatedCoins: []string{"BTC"}},
	}}
	analyzer := &stubAnalyzer{err: errors.New("model offline")}
	c := newTestCache(src, analyzer, now)

	_, err := c.Get(context.Background(), "BTC", 24*time.Hour)
	require.ErrorIs(t, err, ErrSentimentUnavailable)
}

func TestCacheGetNewsFetchFailureIsUnavailable(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &stubNewsSource{err: errors.New("feed down")}
	c := newTestCache(src, &stubAnalyzer{}, now)

	_, err := c.Get(context.Background(), "BTC", 24*time.Hour)
	require.ErrorIs(t, err, ErrSentimentUnavailable)
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"Positive", 1, true},
		{"The sentiment is Negative.", -1, true},
		{"neutral", 0, true},
		{"cannot classify", 0, false},
	}
	for _, tc := range tests {
		got, err := parseLabel(tc.raw)
		if !tc.ok {
			require.ErrorIs(t, err, errUnparsable, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.want, got, tc.raw)
	}
}
