package news

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raidenblackout/CTB/internal/logger"
)

// Article is a single news item normalized across sources.
type Article struct {
	Title          string
	Link           string
	PublishedAt    time.Time
	SourceName     string
	ContentSnippet string
	// RelatedCoins holds tickers like "BTC", "ETH" when the source reports
	// them; otherwise relevance falls back to title matching.
	RelatedCoins []string
}

// MentionsCoin reports whether the article relates to the given ticker,
// either via source-reported coins or a keyword match in the title.
func (a Article) MentionsCoin(ticker string) bool {
	for _, c := range a.RelatedCoins {
		if strings.EqualFold(c, ticker) {
			return true
		}
	}
	title := strings.ToLower(a.Title)
	for _, kw := range coinKeywords(ticker) {
		if strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

// Source is a single news collaborator instance.
type Source interface {
	Name() string
	// FetchArticles returns up to limit articles mentioning any of the given
	// coin tickers, newest first where the upstream supports ordering.
	FetchArticles(ctx context.Context, coins []string, limit int) ([]Article, error)
}

// SourceConfig is one entry of news_sources_config.
type SourceConfig struct {
	Type                string `yaml:"type" validate:"required"`
	Name                string `yaml:"name"`
	URL                 string `yaml:"url"`
	APIKey              string `yaml:"api_key"`
	Query               string `yaml:"query"`
	Language            string `yaml:"language"`
	SortBy              string `yaml:"sort_by"`
	MaxArticlesPerFetch int    `yaml:"max_articles_per_fetch"`
}

// NewSource builds a Source from its config entry.
func NewSource(cfg SourceConfig) (Source, error) {
	switch cfg.Type {
	case "RSSSource", "rss":
		if cfg.URL == "" {
			return nil, fmt.Errorf("rss source %q requires a url", cfg.Name)
		}
		return NewRSSSource(cfg.Name, cfg.URL), nil
	case "NewsApiSource", "newsapi":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("newsapi source requires an api_key")
		}
		return NewNewsAPISource(cfg.APIKey, cfg.Query, cfg.Language, cfg.SortBy), nil
	case "CryptoPanicSource", "cryptopanic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("cryptopanic source requires an api_key")
		}
		return NewCryptoPanicSource(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown news source type: %s", cfg.Type)
	}
}

// Aggregator fans a fetch out across all configured sources and merges the
// results.
type Aggregator struct {
	sources []Source
	log     *logger.Logger
}

// NewAggregator creates an aggregator over the given sources.
func NewAggregator(sources []Source, log *logger.Logger) *Aggregator {
	return &Aggregator{sources: sources, log: log}
}

// FetchRecent fetches from every source concurrently and returns the merged,
// deduplicated articles. Individual source failures are logged and tolerated;
// an error is returned only when every source failed.
func (a *Aggregator) FetchRecent(ctx context.Context, coins []string, limitPerSource int) ([]Article, error) {
	if len(a.sources) == 0 {
		return nil, errors.New("no news sources configured")
	}

	var (
		mu       sync.Mutex
		articles []Article
		failures int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range a.sources {
		src := src
		g.Go(func() error {
			fetched, err := src.FetchArticles(gctx, coins, limitPerSource)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				a.log.Warn("news fetch failed",
					zap.String("source", src.Name()),
					zap.Error(err))
				return nil
			}
			articles = append(articles, fetched...)
			return nil
		})
	}
	_ = g.Wait()

	if failures == len(a.sources) {
		return nil, fmt.Errorf("all %d news sources failed", failures)
	}
	return dedupe(articles), nil
}

// dedupe removes articles that share (title, link). Sources frequently
// syndicate the same story.
func dedupe(articles []Article) []Article {
	seen := make(map[string]struct{}, len(articles))
	out := articles[:0]
	for _, art := range articles {
		key := art.Title + "|" + art.Link
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, art)
	}
	return out
}

// coinKeywords maps a ticker to lowercase keywords used for title matching.
func coinKeywords(ticker string) []string {
	keywords := []string{strings.ToLower(ticker)}
	if names, ok := wellKnownCoins[strings.ToUpper(ticker)]; ok {
		keywords = append(keywords, names...)
	}
	return keywords
}

var wellKnownCoins = map[string][]string{
	"BTC":  {"bitcoin"},
	"ETH":  {"ethereum", "ether"},
	"SOL":  {"solana"},
	"XRP":  {"ripple"},
	"ADA":  {"cardano"},
	"DOGE": {"dogecoin"},
	"DOT":  {"polkadot"},
	"LTC":  {"litecoin"},
}
