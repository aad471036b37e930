package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/raidenblackout/CTB/internal/market"
	"github.com/raidenblackout/CTB/internal/portfolio"
	"github.com/raidenblackout/CTB/internal/sentiment"
)

// Signal is a strategy's proposed trade, prior to capital-feasibility
// adjustment by the conflict resolver. Signals are produced fresh each tick
// and never mutated.
type Signal struct {
	Strategy string
	Symbol   string
	Side     portfolio.Side
	// SizePercent is the fraction (0, 1] of the quote-currency free balance
	// (BUY) or of the held base quantity (SELL) to commit.
	SizePercent float64
	// Reason tags the signal for the audit trail.
	Reason string
}

// MarketView is the read-only market data surface handed to strategies.
type MarketView interface {
	Get(ctx context.Context, symbol, timeframe string, lookback int) (market.Snapshot, error)
}

// SentimentView is the read-only sentiment surface handed to strategies.
type SentimentView interface {
	Get(ctx context.Context, symbol string, maxAge time.Duration) (sentiment.Score, error)
}

// EvalContext bundles the per-tick inputs. The portfolio snapshot is an
// immutable copy; strategies never see live ledger state.
type EvalContext struct {
	Now       time.Time
	Market    MarketView
	Sentiment SentimentView
	Portfolio portfolio.Snapshot
}

// Strategy turns cached data into zero or more trade signals. Evaluate must
// be a pure function of its inputs: no hidden state, no side effects beyond
// reads through the views.
type Strategy interface {
	Name() string
	// Symbols lists the pair symbols the strategy may trade, so the engine
	// can prefetch prices.
	Symbols() []string
	Evaluate(ctx context.Context, ec EvalContext) ([]Signal, error)
}

// Constructor builds a strategy instance from its config entry.
type Constructor func(name string, params map[string]any) (Strategy, error)

// Registry maps class names from the configuration to constructors. Entries
// are registered at build time; there is no dynamic loading.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under a class name.
func (r *Registry) Register(className string, ctor Constructor) {
	r.constructors[className] = ctor
}

// Build instantiates a strategy. An unknown class name is a configuration
// error and surfaces at startup.
func (r *Registry) Build(className, name string, params map[string]any) (Strategy, error) {
	ctor, ok := r.constructors[className]
	if !ok {
		return nil, fmt.Errorf("unknown strategy class %q", className)
	}
	return ctor(name, params)
}

// DefaultRegistry returns the registry with the built-in strategy variants.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("MovingAverageCrossoverStrategy", NewMovingAverageCrossover)
	r.Register("SentimentLLMStrategy", NewSentimentLLM)
	return r
}
