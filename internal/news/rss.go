package news

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// RSSSource reads a single RSS/Atom feed.
type RSSSource struct {
	name   string
	url    string
	parser *gofeed.Parser
}

// NewRSSSource creates a source for one feed URL.
func NewRSSSource(name, url string) *RSSSource {
	if name == "" {
		name = url
	}
	parser := gofeed.NewParser()
	parser.UserAgent = "CTB-news-aggregator/1.0"
	return &RSSSource{name: name, url: url, parser: parser}
}

// Name implements Source.
func (s *RSSSource) Name() string { return s.name }

// FetchArticles implements Source. RSS carries no coin metadata, so items are
// kept only when the title mentions one of the requested coins.
func (s *RSSSource) FetchArticles(ctx context.Context, coins []string, limit int) ([]Article, error) {
	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", s.url, err)
	}

	articles := make([]Article, 0, limit)
	for _, item := range feed.Items {
		if limit > 0 && len(articles) >= limit {
			break
		}
		published := time.Now().UTC()
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC()
		}
		art := Article{
			Title:          item.Title,
			Link:           item.Link,
			PublishedAt:    published,
			SourceName:     s.name,
			ContentSnippet: item.Description,
		}
		if !mentionsAny(art, coins) {
			continue
		}
		articles = append(articles, art)
	}
	return articles, nil
}

func mentionsAny(art Article, coins []string) bool {
	if len(coins) == 0 {
		return true
	}
	for _, c := range coins {
		if art.MentionsCoin(c) {
			return true
		}
	}
	return false
}
