package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPISource queries NewsAPI.org's everything endpoint.
type NewsAPISource struct {
	apiKey   string
	query    string
	language string
	sortBy   string
	client   *http.Client
}

// NewNewsAPISource creates a NewsAPI.org source. Query may be empty, in which
// case each fetch builds a query from the requested coins.
func NewNewsAPISource(apiKey, query, language, sortBy string) *NewsAPISource {
	if language == "" {
		language = "en"
	}
	if sortBy == "" {
		sortBy = "publishedAt"
	}
	return &NewsAPISource{
		apiKey:   apiKey,
		query:    query,
		language: language,
		sortBy:   sortBy,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Name implements Source.
func (s *NewsAPISource) Name() string { return "NewsAPI.org" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Description string `json:"description"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// FetchArticles implements Source.
func (s *NewsAPISource) FetchArticles(ctx context.Context, coins []string, limit int) ([]Article, error) {
	query := s.query
	if query == "" {
		terms := make([]string, 0, len(coins)*2)
		for _, c := range coins {
			for _, kw := range coinKeywords(c) {
				terms = append(terms, fmt.Sprintf("%q", kw))
			}
		}
		query = strings.Join(terms, " OR ")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("language", s.language)
	params.Set("sortBy", s.sortBy)
	params.Set("apiKey", s.apiKey)
	if limit > 0 {
		params.Set("pageSize", fmt.Sprintf("%d", limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, newsAPIBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("newsapi error %d: %s", resp.StatusCode, string(body))
	}

	var payload newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode newsapi response: %w", err)
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %s: %s", payload.Status, payload.Message)
	}

	articles := make([]Article, 0, len(payload.Articles))
	for _, raw := range payload.Articles {
		if raw.Title == "" || raw.URL == "" {
			continue
		}
		published, err := time.Parse(time.RFC3339, raw.PublishedAt)
		if err != nil {
			published = time.Now().UTC()
		}
		sourceName := raw.Source.Name
		if sourceName == "" {
			sourceName = s.Name()
		}
		art := Article{
			Title:          raw.Title,
			Link:           raw.URL,
			PublishedAt:    published.UTC(),
			SourceName:     sourceName,
			ContentSnippet: raw.Description,
		}
		if mentionsAny(art, coins) {
			articles = append(articles, art)
		}
	}
	return articles, nil
}
