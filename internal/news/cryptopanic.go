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

const cryptoPanicBaseURL = "https://cryptopanic.com/api/v1/posts/"

// CryptoPanicSource queries the CryptoPanic posts API, which tags each post
// with the coins it concerns.
type CryptoPanicSource struct {
	apiKey string
	client *http.Client
}

// NewCryptoPanicSource creates a CryptoPanic source.
func NewCryptoPanicSource(apiKey string) *CryptoPanicSource {
	return &CryptoPanicSource{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name implements Source.
func (s *CryptoPanicSource) Name() string { return "CryptoPanic" }

type cryptoPanicResponse struct {
	Results []struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		CreatedAt string `json:"created_at"`
		Source    struct {
			Domain string `json:"domain"`
		} `json:"source"`
		Currencies []struct {
			Code string `json:"code"`
		} `json:"currencies"`
	} `json:"results"`
}

// FetchArticles implements Source.
func (s *CryptoPanicSource) FetchArticles(ctx context.Context, coins []string, limit int) ([]Article, error) {
	params := url.Values{}
	params.Set("auth_token", s.apiKey)
	params.Set("public", "true")
	if len(coins) > 0 {
		params.Set("currencies", strings.Join(coins, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cryptoPanicBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cryptopanic request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cryptopanic error %d: %s", resp.StatusCode, string(body))
	}

	var payload cryptoPanicResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode cryptopanic response: %w", err)
	}

	articles := make([]Article, 0, len(payload.Results))
	for _, raw := range payload.Results {
		if limit > 0 && len(articles) >= limit {
			break
		}
		if raw.Title == "" || raw.URL == "" {
			continue
		}
		published, err := time.Parse(time.RFC3339, raw.CreatedAt)
		if err != nil {
			published = time.Now().UTC()
		}
		sourceName := raw.Source.Domain
		if sourceName == "" {
			sourceName = s.Name()
		}
		related := make([]string, 0, len(raw.Currencies))
		for _, c := range raw.Currencies {
			if c.Code != "" {
				related = append(related, c.Code)
			}
		}
		articles = append(articles, Article{
			Title:        raw.Title,
			Link:         raw.URL,
			PublishedAt:  published.UTC(),
			SourceName:   sourceName,
			RelatedCoins: related,
		})
	}
	return articles, nil
}
