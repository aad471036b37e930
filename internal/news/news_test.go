package news

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raidenblackout/CTB/internal/logger"
)

type stubSource struct {
	name     string
	articles []Article
	err      error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) FetchArticles(ctx context.Context, coins []string, limit int) ([]Article, error) {
	return s.articles, s.err
}

func TestArticleMentionsCoin(t *testing.T) {
	tests := []struct {
		article Article
		ticker  string
		want    bool
	}{
		{Article{RelatedCoins: []string{"BTC"}}, "btc", true},
		{Article{Title: "Bitcoin breaks new record"}, "BTC", true},
		{Article{Title: "Ether rally gains momentum"}, "ETH", true},
		{Article{Title: "SOL climbs on upgrade news"}, "SOL", true},
		{Article{Title: "Gold hits all-time high"}, "BTC", false},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, tc.article.MentionsCoin(tc.ticker), "%q vs %s", tc.article.Title, tc.ticker)
	}
}

func TestAggregatorMergesAndDeduplicates(t *testing.T) {
	now := time.Now().UTC()
	shared := Article{Title: "Bitcoin ETF inflows surge", Link: "https://example.com/etf", PublishedAt: now}
	agg := NewAggregator([]Source{
		stubSource{name: "a", articles: []Article{shared, {Title: "Ethereum upgrade ships", Link: "https://example.com/eth", PublishedAt: now}}},
		stubSource{name: "b", articles: []Article{shared}},
	}, logger.NewNop())

	articles, err := agg.FetchRecent(context.Background(), []string{"BTC", "ETH"}, 10)
	require.NoError(t, err)
	require.Len(t, articles, 2)
}

func TestAggregatorToleratesPartialFailure(t *testing.T) {
	now := time.Now().UTC()
	agg := NewAggregator([]Source{
		stubSource{name: "down", err: errors.New("feed offline")},
		stubSource{name: "up", articles: []Article{{Title: "Bitcoin steady", Link: "l", PublishedAt: now}}},
	}, logger.NewNop())

	articles, err := agg.FetchRecent(context.Background(), []string{"BTC"}, 10)
	require.NoError(t, err)
	require.Len(t, articles, 1)
}

func TestAggregatorFailsWhenAllSourcesFail(t *testing.T) {
	agg := NewAggregator([]Source{
		stubSource{name: "a", err: errors.New("offline")},
		stubSource{name: "b", err: errors.New("offline")},
	}, logger.NewNop())

	_, err := agg.FetchRecent(context.Background(), []string{"BTC"}, 10)
	require.Error(t, err)
}

func TestNewSourceValidation(t *testing.T) {
	_, err := NewSource(SourceConfig{Type: "RSSSource"})
	require.Error(t, err)

	_, err = NewSource(SourceConfig{Type: "NewsApiSource"})
	require.Error(t, err)

	_, err = NewSource(SourceConfig{Type: "TwitterSource"})
	require.Error(t, err)

	src, err := NewSource(SourceConfig{Type: "RSSSource", Name: "feed", URL: "https://example.com/rss"})
	require.NoError(t, err)
	require.Equal(t, "feed", src.Name())
}
