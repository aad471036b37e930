package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raidenblackout/CTB/internal/portfolio"
)

// SentimentParams is the typed parameter schema of the LLM sentiment
// strategy. Thresholds are on the aggregated score in [-1, 1]; the sell
// threshold is typically negative. They are pointers because 0.0 is a valid
// threshold and must be distinguishable from an absent key.
type SentimentParams struct {
	TargetSymbols           []string `yaml:"target_symbols" validate:"required,min=1"`
	SentimentThresholdBuy   *float64 `yaml:"sentiment_threshold_buy" validate:"required"`
	SentimentThresholdSell  *float64 `yaml:"sentiment_threshold_sell" validate:"required"`
	TradeQuantityPercentage float64  `yaml:"trade_quantity_percentage" validate:"required,gt=0,lte=1"`
	NewsMaxAgeHours         int      `yaml:"news_max_age_hours" validate:"required,gt=0"`
	QuoteCurrency           string   `yaml:"quote_currency" validate:"required"`
}

// SentimentLLM trades on aggregated news sentiment: BUY when the score
// reaches the buy threshold, SELL when it falls to the sell threshold.
// Scores older than news_max_age_hours are discarded even if the cache would
// still serve them.
type SentimentLLM struct {
	name   string
	params SentimentParams
	buyAt  float64
	sellAt float64
}

// NewSentimentLLM is the registry constructor for the sentiment strategy.
func NewSentimentLLM(name string, params map[string]any) (Strategy, error) {
	var p SentimentParams
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	buy, sell := *p.SentimentThresholdBuy, *p.SentimentThresholdSell
	if sell >= buy {
		return nil, fmt.Errorf("strategy %s: sentiment_threshold_sell %.2f must be below sentiment_threshold_buy %.2f", name, sell, buy)
	}
	return &SentimentLLM{name: name, params: p, buyAt: buy, sellAt: sell}, nil
}

// Name implements Strategy.
func (s *SentimentLLM) Name() string { return s.name }

// Symbols implements Strategy.
func (s *SentimentLLM) Symbols() []string {
	pairs := make([]string, 0, len(s.params.TargetSymbols))
	for _, ticker := range s.params.TargetSymbols {
		pairs = append(pairs, ticker+"/"+s.params.QuoteCurrency)
	}
	return pairs
}

// Evaluate implements Strategy. Per-symbol sentiment failures are collected
// but do not suppress signals for the remaining symbols.
func (s *SentimentLLM) Evaluate(ctx context.Context, ec EvalContext) ([]Signal, error) {
	maxAge := time.Duration(s.params.NewsMaxAgeHours) * time.Hour

	var signals []Signal
	var errs []error
	for _, ticker := range s.params.TargetSymbols {
		score, err := ec.Sentiment.Get(ctx, ticker, maxAge)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ticker, err))
			continue
		}
		if score.SampleCount == 0 {
			continue
		}
		// Staleness override: suppress even a cache-served score once it
		// exceeds this strategy's news window.
		if score.Age(ec.Now) > maxAge {
			continue
		}

		pair := ticker + "/" + s.params.QuoteCurrency
		held := ec.Portfolio.Position(pair).Quantity.Sign() > 0

		switch {
		case score.Score >= s.buyAt && !held:
			signals = append(signals, Signal{
				Strategy:    s.name,
				Symbol:      pair,
				Side:        portfolio.SideBuy,
				SizePercent: s.params.TradeQuantityPercentage,
				Reason:      fmt.Sprintf("sentiment %.3f >= %.2f (%d articles)", score.Score, s.buyAt, score.SampleCount),
			})
		case score.Score <= s.sellAt && held:
			signals = append(signals, Signal{
				Strategy:    s.name,
				Symbol:      pair,
				Side:        portfolio.SideSell,
				SizePercent: s.params.TradeQuantityPercentage,
				Reason:      fmt.Sprintf("sentiment %.3f <= %.2f (%d articles)", score.Score, s.sellAt, score.SampleCount),
			})
		}
	}
	return signals, errors.Join(errs...)
}
