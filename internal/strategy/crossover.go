package strategy

import (
	"context"
	"fmt"

	"github.com/raidenblackout/CTB/internal/market"
	"github.com/raidenblackout/CTB/internal/portfolio"
)

// CrossoverParams is the typed parameter schema of the moving average
// crossover strategy.
type CrossoverParams struct {
	Symbol                  string  `yaml:"symbol" validate:"required,contains=/"`
	ShortWindow             int     `yaml:"short_window" validate:"required,gt=1"`
	LongWindow              int     `yaml:"long_window" validate:"required,gtfield=ShortWindow"`
	Timeframe               string  `yaml:"timeframe" validate:"required"`
	TradeQuantityPercentage float64 `yaml:"trade_quantity_percentage" validate:"required,gt=0,lte=1"`
}

// MovingAverageCrossover emits a BUY on the bar where the short SMA first
// crosses above the long SMA and a SELL on the opposite crossing. The edge is
// detected from the most recent two bars as a strict inequality flip, so the
// signal fires once per crossing, not on every bar while the condition holds.
type MovingAverageCrossover struct {
	name   string
	params CrossoverParams
}

// NewMovingAverageCrossover is the registry constructor for the crossover
// strategy.
func NewMovingAverageCrossover(name string, params map[string]any) (Strategy, error) {
	var p CrossoverParams
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return &MovingAverageCrossover{name: name, params: p}, nil
}

// Name implements Strategy.
func (s *MovingAverageCrossover) Name() string { return s.name }

// Symbols implements Strategy.
func (s *MovingAverageCrossover) Symbols() []string { return []string{s.params.Symbol} }

// Evaluate implements Strategy.
func (s *MovingAverageCrossover) Evaluate(ctx context.Context, ec EvalContext) ([]Signal, error) {
	// One extra bar so the previous-bar SMAs are computable.
	lookback := s.params.LongWindow + 1
	snap, err := ec.Market.Get(ctx, s.params.Symbol, s.params.Timeframe, lookback)
	if err != nil {
		return nil, err
	}
	bars := snap.Bars
	if len(bars) < lookback {
		return nil, nil
	}

	short, err := market.SMA(bars, s.params.ShortWindow)
	if err != nil {
		return nil, err
	}
	long, err := market.SMA(bars, s.params.LongWindow)
	if err != nil {
		return nil, err
	}
	prev := bars[:len(bars)-1]
	prevShort, err := market.SMA(prev, s.params.ShortWindow)
	if err != nil {
		return nil, err
	}
	prevLong, err := market.SMA(prev, s.params.LongWindow)
	if err != nil {
		return nil, err
	}

	hasPosition := ec.Portfolio.Position(s.params.Symbol).Quantity.Sign() > 0

	switch {
	case prevShort <= prevLong && short > long && !hasPosition:
		return []Signal{{
			Strategy:    s.name,
			Symbol:      s.params.Symbol,
			Side:        portfolio.SideBuy,
			SizePercent: s.params.TradeQuantityPercentage,
			Reason:      fmt.Sprintf("golden_cross sma%d>sma%d", s.params.ShortWindow, s.params.LongWindow),
		}}, nil
	case prevShort >= prevLong && short < long && hasPosition:
		return []Signal{{
			Strategy:    s.name,
			Symbol:      s.params.Symbol,
			Side:        portfolio.SideSell,
			SizePercent: s.params.TradeQuantityPercentage,
			Reason:      fmt.Sprintf("death_cross sma%d<sma%d", s.params.ShortWindow, s.params.LongWindow),
		}}, nil
	default:
		return nil, nil
	}
}
