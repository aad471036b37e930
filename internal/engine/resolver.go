package engine

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/raidenblackout/CTB/internal/logger"
	"github.com/raidenblackout/CTB/internal/portfolio"
	"github.com/raidenblackout/CTB/internal/strategy"
)

// quantityScale bounds the decimal places of a planned quantity.
const quantityScale = 12

// PlanEntry is one sized order in an execution plan. Quantity is in the
// base currency of the pair; Price is the estimate used for sizing, not a
// limit price.
type PlanEntry struct {
	Signal   strategy.Signal
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// DroppedSignal explains why a signal did not make it into the plan.
type DroppedSignal struct {
	Signal strategy.Signal
	Reason string
}

// Resolver turns the tick's signals into a capital-feasible execution plan.
// Strategies are prioritised by their declaration order in the config:
// earlier strategies get first claim on the available balance. Sizing runs
// against a simulated copy of the portfolio so that later entries see the
// balance remaining after earlier ones, never the same funds twice.
//
// Opposing signals on the same symbol are not netted; both are planned in
// priority order and execution settles the outcome.
type Resolver struct {
	priority map[string]int
	headroom decimal.Decimal
	logger   *logger.Logger
}

type ResolverOption func(*Resolver)

// WithCostHeadroom reserves room for slippage and fees when sizing buys.
// Quantity is computed against price*headroom while the full spend is still
// claimed from the simulated balance, so the eventual fill cost cannot
// exceed what the plan set aside. Simulated sell proceeds are discounted by
// the same factor. Values at or below 1 disable the reserve.
func WithCostHeadroom(factor float64) ResolverOption {
	return func(r *Resolver) {
		if factor > 1 {
			r.headroom = decimal.NewFromFloat(factor)
		}
	}
}

// NewResolver takes strategy names in config declaration order.
func NewResolver(order []string, log *logger.Logger, opts ...ResolverOption) *Resolver {
	priority := make(map[string]int, len(order))
	for i, name := range order {
		priority[name] = i
	}
	r := &Resolver{priority: priority, headroom: decimal.NewFromInt(1), logger: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) rank(name string) int {
	if p, ok := r.priority[name]; ok {
		return p
	}
	return len(r.priority)
}

// Resolve sizes each signal against the simulated balances and returns the
// plan plus the signals it had to drop. The input slice is not modified.
func (r *Resolver) Resolve(signals []strategy.Signal, snap portfolio.Snapshot, prices map[string]float64) ([]PlanEntry, []DroppedSignal) {
	ordered := make([]strategy.Signal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return r.rank(ordered[i].Strategy) < r.rank(ordered[j].Strategy)
	})

	balances := make(map[string]decimal.Decimal, len(snap.Balances))
	for cur, amount := range snap.Balances {
		balances[cur] = amount
	}
	held := make(map[string]decimal.Decimal, len(snap.Positions))
	for _, pos := range snap.Positions {
		held[pos.Symbol] = pos.Quantity
	}

	var plan []PlanEntry
	var dropped []DroppedSignal
	drop := func(sig strategy.Signal, reason string) {
		r.logger.Info("signal dropped",
			zap.String("strategy", sig.Strategy),
			zap.String("symbol", sig.Symbol),
			zap.String("side", string(sig.Side)),
			zap.String("reason", reason))
		dropped = append(dropped, DroppedSignal{Signal: sig, Reason: reason})
	}

	for _, sig := range ordered {
		price, ok := prices[sig.Symbol]
		if !ok || price <= 0 {
			drop(sig, "no_price")
			continue
		}
		execPrice := decimal.NewFromFloat(price)
		size := decimal.NewFromFloat(sig.SizePercent)
		_, quote := portfolio.SplitSymbol(sig.Symbol)

		switch sig.Side {
		case portfolio.SideBuy:
			free := balances[quote]
			spend := free.Mul(size)
			if spend.Sign() <= 0 {
				drop(sig, "insufficient_balance")
				continue
			}
			// Truncated so the fill cost never rounds above the spend.
			qty := spend.Div(execPrice.Mul(r.headroom)).RoundDown(quantityScale)
			if qty.Sign() <= 0 {
				drop(sig, "zero_quantity")
				continue
			}
			balances[quote] = free.Sub(spend)
			held[sig.Symbol] = held[sig.Symbol].Add(qty)
			plan = append(plan, PlanEntry{Signal: sig, Quantity: qty, Price: execPrice})

		case portfolio.SideSell:
			qty := held[sig.Symbol].Mul(size)
			if qty.Sign() <= 0 {
				drop(sig, "no_position")
				continue
			}
			held[sig.Symbol] = held[sig.Symbol].Sub(qty)
			balances[quote] = balances[quote].Add(qty.Mul(execPrice).Div(r.headroom))
			plan = append(plan, PlanEntry{Signal: sig, Quantity: qty, Price: execPrice})

		default:
			drop(sig, "unknown_side")
		}
	}
	return plan, dropped
}
