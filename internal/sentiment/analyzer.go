package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raidenblackout/CTB/internal/llm/ollama"
)

// ErrSentimentUnavailable marks a sentiment computation that failed after the
// retry budget was exhausted. Callers treat it as "neutral / no signal",
// never as fatal.
var ErrSentimentUnavailable = errors.New("sentiment unavailable")

// errUnparsable marks an LLM reply that contained no recognizable label.
var errUnparsable = errors.New("unparsable sentiment classification")

// Analyzer scores a piece of text for a target coin. The score is +1 for
// positive, -1 for negative and 0 for neutral sentiment.
type Analyzer interface {
	Score(ctx context.Context, text, targetCoin string) (float64, error)
}

// ClientConfig is the ollama_client_config block.
type ClientConfig struct {
	Host string `yaml:"host"`
}

// AnalyzerConfig is the sentiment_analyzer_config block.
type AnalyzerConfig struct {
	Model          string `yaml:"model" validate:"required"`
	Mode           string `yaml:"mode" validate:"omitempty,oneof=chat direct ollama_chat ollama_direct"`
	PromptTemplate string `yaml:"prompt_template"`
}

const defaultSystemPrompt = "You are a financial sentiment analyst. " +
	"Analyze the sentiment of the following crypto news headline based on the given crypto. " +
	"Classify the sentiment strictly as 'Positive', 'Negative', or 'Neutral'. " +
	"Do not add any other commentary or explanation. Only provide the classification."

// llmClient is the subset of the Ollama client the analyzer needs.
type llmClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMAnalyzer classifies sentiment with an LLM served by Ollama.
type LLMAnalyzer struct {
	client       llmClient
	mode         string
	systemPrompt string
}

// NewLLMAnalyzer builds an analyzer from the client and analyzer config
// blocks.
func NewLLMAnalyzer(clientCfg ClientConfig, cfg AnalyzerConfig) *LLMAnalyzer {
	systemPrompt := cfg.PromptTemplate
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	mode := "chat"
	if cfg.Mode == "direct" || cfg.Mode == "ollama_direct" {
		mode = "direct"
	}
	return &LLMAnalyzer{
		client:       ollama.New(clientCfg.Host, cfg.Model),
		mode:         mode,
		systemPrompt: systemPrompt,
	}
}

// Score implements Analyzer.
func (a *LLMAnalyzer) Score(ctx context.Context, text, targetCoin string) (float64, error) {
	userPrompt := fmt.Sprintf("News Headline: %q\nTarget Coin: %s", text, targetCoin)

	var raw string
	var err error
	if a.mode == "direct" {
		prompt := a.systemPrompt + "\n\nUser: " + userPrompt + "\nAssistant (Sentiment Classification Only):"
		raw, err = a.client.Generate(ctx, prompt)
	} else {
		raw, err = a.client.Chat(ctx, a.systemPrompt, userPrompt)
	}
	if err != nil {
		return 0, err
	}
	return parseLabel(raw)
}

// parseLabel maps the model's textual classification to a score.
func parseLabel(raw string) (float64, error) {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "positive"):
		return 1, nil
	case strings.Contains(lower, "negative"):
		return -1, nil
	case strings.Contains(lower, "neutral"):
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnparsable, strings.TrimSpace(raw))
	}
}
