package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raidenblackout/CTB/internal/exchange"
	"github.com/raidenblackout/CTB/internal/logger"
	"github.com/raidenblackout/CTB/internal/market"
	"github.com/raidenblackout/CTB/internal/portfolio"
	"github.com/raidenblackout/CTB/internal/recorder"
	"github.com/raidenblackout/CTB/internal/risk"
	"github.com/raidenblackout/CTB/internal/strategy"
)

// commitTimeout bounds the execution phase once it has started. The commit
// runs on a context detached from the tick deadline so that an expiring
// tick cannot abandon orders halfway through a plan.
const commitTimeout = 30 * time.Second

// Deps wires the engine's collaborators.
type Deps struct {
	Strategies []strategy.Strategy
	Market     *market.Cache
	Sentiment  strategy.SentimentView
	Ledger     *portfolio.Ledger
	Gate       *risk.Gate
	Resolver   *Resolver
	Executor   *Executor
	Paper      *exchange.PaperClient // nil when trading live
	Recorder   recorder.Recorder
	Logger     *logger.Logger

	// CheckpointPath, when set, is where the ledger is saved after each
	// tick that executed at least one order.
	CheckpointPath string
}

// Engine runs the evaluate/resolve/execute cycle for one tick at a time.
// The scheduler guarantees ticks never overlap, so per-tick state needs no
// locking beyond what the caches and ledger already do.
type Engine struct {
	deps        Deps
	tickSeq     int64
	lastTradeAt map[string]time.Time
}

func New(deps Deps) *Engine {
	return &Engine{deps: deps, lastTradeAt: make(map[string]time.Time)}
}

// Tick runs one full agent cycle. Errors inside a tick are contained:
// they are logged and recorded, never propagated to the scheduler.
func (e *Engine) Tick(ctx context.Context) {
	e.tickSeq++
	tickID := e.tickSeq
	start := time.Now().UTC()
	log := e.deps.Logger

	snap := e.deps.Ledger.Snapshot()
	symbols := e.tradedSymbols()
	prices := e.fetchPrices(ctx, symbols)

	signals := e.evaluate(ctx, snap)

	approved := e.deps.Gate.Filter(signals, risk.GateContext{
		Now:         start,
		Prices:      prices,
		Snapshot:    snap,
		LastTradeAt: e.lastTradeAt,
	})
	for i := range signals {
		if !containsSignal(approved, signals[i]) {
			e.record(recorder.OutcomeFor(signals[i], "rejected_risk", tickID))
		}
	}

	plan, dropped := e.deps.Resolver.Resolve(approved, snap, prices)
	for _, d := range dropped {
		e.record(recorder.OutcomeFor(d.Signal, "dropped_"+d.Reason, tickID))
	}
	for _, entry := range plan {
		e.record(recorder.OutcomeFor(entry.Signal, "planned", tickID))
	}

	var result ExecResult
	if len(plan) > 0 {
		// Commit phase: detach from the tick deadline.
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		defer cancel()

		if e.deps.Paper != nil {
			for sym, price := range prices {
				e.deps.Paper.UpdatePrice(sym, price)
			}
		}
		result = e.deps.Executor.Execute(commitCtx, plan)
		for _, fill := range result.Fills {
			e.lastTradeAt[fill.Symbol] = fill.Timestamp
			if err := e.deps.Recorder.RecordFill(tickID, fill); err != nil {
				log.Warn("record fill failed", zap.Error(err))
			}
		}
		if len(result.Fills) > 0 && e.deps.CheckpointPath != "" {
			if err := e.deps.Ledger.Save(e.deps.CheckpointPath); err != nil {
				log.Error("checkpoint save failed", zap.Error(err))
			}
		}
	}

	after := e.deps.Ledger.Snapshot()
	equity, _ := after.Equity(prices).Float64()
	elapsed := time.Since(start)
	log.Info("tick complete",
		zap.Int64("tick", tickID),
		zap.Duration("elapsed", elapsed),
		zap.Int("signals", len(signals)),
		zap.Int("planned", len(plan)),
		zap.Int("executed", len(result.Fills)),
		zap.Int("failed", len(result.Failed)),
		zap.Float64("equity", equity))

	if err := e.deps.Recorder.RecordTick(&recorder.TickEvent{
		TickID:    tickID,
		StartedAt: start,
		Duration:  elapsed,
		Signals:   len(signals),
		Planned:   len(plan),
		Executed:  len(result.Fills),
		Failed:    len(result.Failed),
		Equity:    equity,
	}); err != nil {
		log.Warn("record tick failed", zap.Error(err))
	}
}

// tradedSymbols is the union of every strategy's pair symbols.
func (e *Engine) tradedSymbols() []string {
	seen := make(map[string]struct{})
	var symbols []string
	for _, strat := range e.deps.Strategies {
		for _, sym := range strat.Symbols() {
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
	}
	return symbols
}

// fetchPrices pulls current prices concurrently. A symbol whose price is
// unavailable is simply absent from the map; the resolver drops its
// signals with a logged reason.
func (e *Engine) fetchPrices(ctx context.Context, symbols []string) map[string]float64 {
	prices := make(map[string]float64, len(symbols))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			price, err := e.deps.Market.Price(gctx, sym)
			if err != nil {
				e.deps.Logger.Warn("price unavailable", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			mu.Lock()
			prices[sym] = price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return prices
}

// evaluate runs every strategy concurrently against the same immutable
// snapshot. A failing strategy loses only its own signals for this tick.
func (e *Engine) evaluate(ctx context.Context, snap portfolio.Snapshot) []strategy.Signal {
	ec := strategy.EvalContext{
		Now:       time.Now().UTC(),
		Market:    e.deps.Market,
		Sentiment: e.deps.Sentiment,
		Portfolio: snap,
	}

	var mu sync.Mutex
	var signals []strategy.Signal
	g, gctx := errgroup.WithContext(ctx)
	for _, strat := range e.deps.Strategies {
		strat := strat
		g.Go(func() error {
			out, err := strat.Evaluate(gctx, ec)
			if err != nil {
				// Partial results still count; a strategy may fail on one
				// symbol and signal on another.
				e.deps.Logger.Warn("strategy evaluation error",
					zap.String("strategy", strat.Name()), zap.Error(err))
			}
			mu.Lock()
			signals = append(signals, out...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return signals
}

func (e *Engine) record(evt *recorder.SignalEvent) {
	if err := e.deps.Recorder.RecordSignal(evt); err != nil {
		e.deps.Logger.Warn("record signal failed", zap.Error(err))
	}
}

func containsSignal(list []strategy.Signal, sig strategy.Signal) bool {
	for _, s := range list {
		if s == sig {
			return true
		}
	}
	return false
}
