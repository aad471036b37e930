package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raidenblackout/CTB/internal/exchange"
	"github.com/raidenblackout/CTB/internal/logger"
	"github.com/raidenblackout/CTB/internal/market"
	"github.com/raidenblackout/CTB/internal/portfolio"
	"github.com/raidenblackout/CTB/internal/recorder"
	"github.com/raidenblackout/CTB/internal/risk"
	"github.com/raidenblackout/CTB/internal/strategy"
)

type tickerSource struct {
	price float64
}

func (s tickerSource) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error) {
	return nil, market.ErrDataUnavailable
}

func (s tickerSource) FetchTicker(ctx context.Context, symbol string) (market.Ticker, error) {
	return market.Ticker{Symbol: symbol, Last: s.price, Timestamp: time.Now().UTC()}, nil
}

type fixedStrategy struct {
	name    string
	signals []strategy.Signal
	err     error
}

func (s fixedStrategy) Name() string      { return s.name }
func (s fixedStrategy) Symbols() []string { return []string{"BTC/USDT"} }

func (s fixedStrategy) Evaluate(ctx context.Context, ec strategy.EvalContext) ([]strategy.Signal, error) {
	return s.signals, s.err
}

func newTickEngine(t *testing.T, strategies []strategy.Strategy, ledger *portfolio.Ledger) (*Engine, *exchange.PaperClient) {
	t.Helper()
	log := logger.NewNop()
	paper := exchange.NewPaperClient(exchange.PaperConfig{SlippageFactor: 0.001, CommissionRate: 0.001})
	cache := market.NewCache(tickerSource{price: 50000}, log)
	return New(Deps{
		Strategies: strategies,
		Market:     cache,
		Sentiment:  nil,
		Ledger:     ledger,
		Gate:       risk.NewGate(risk.Config{}, log),
		Resolver:   NewResolver([]string{"fixed"}, log, WithCostHeadroom(paper.CostHeadroom())),
		Executor:   NewExecutor(paper, ledger, log),
		Paper:      paper,
		Recorder:   recorder.NewNoopRecorder(),
		Logger:     log,
	}), paper
}

func TestTickExecutesSignalEndToEnd(t *testing.T) {
	ledger := portfolio.NewLedger("USDT", map[string]float64{"USDT": 10000})
	strat := fixedStrategy{name: "fixed", signals: []strategy.Signal{{
		Strategy:    "fixed",
		Symbol:      "BTC/USDT",
		Side:        portfolio.SideBuy,
		SizePercent: 0.5,
		Reason:      "test",
	}}}
	eng, _ := newTickEngine(t, []strategy.Strategy{strat}, ledger)

	eng.Tick(context.Background())

	snap := ledger.Snapshot()
	require.True(t, snap.Position("BTC/USDT").Quantity.Sign() > 0)
	require.True(t, snap.FreeBalance("USDT").LessThan(d(10000)))
}

func TestTickSurvivesStrategyFailure(t *testing.T) {
	ledger := portfolio.NewLedger("USDT", map[string]float64{"USDT": 10000})
	failing := fixedStrategy{name: "fixed", err: market.ErrDataUnavailable}
	eng, _ := newTickEngine(t, []strategy.Strategy{failing}, ledger)

	eng.Tick(context.Background())

	snap := ledger.Snapshot()
	require.True(t, snap.FreeBalance("USDT").Equal(d(10000)))
	require.Empty(t, snap.Positions)
}

func TestTickUpdatesCooldownState(t *testing.T) {
	ledger := portfolio.NewLedger("USDT", map[string]float64{"USDT": 10000})
	strat := fixedStrategy{name: "fixed", signals: []strategy.Signal{{
		Strategy:    "fixed",
		Symbol:      "BTC/USDT",
		Side:        portfolio.SideBuy,
		SizePercent: 0.1,
		Reason:      "test",
	}}}
	eng, _ := newTickEngine(t, []strategy.Strategy{strat}, ledger)
	eng.deps.Gate = risk.NewGate(risk.Config{TradeCooldownSec: 3600}, logger.NewNop())

	eng.Tick(context.Background())
	first := ledger.Snapshot().Position("BTC/USDT").Quantity

	// Second tick within the cooldown places nothing.
	eng.Tick(context.Background())
	require.True(t, ledger.Snapshot().Position("BTC/USDT").Quantity.Equal(first))
}
