package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raidenblackout/CTB/internal/exchange"
	"github.com/raidenblackout/CTB/internal/logger"
	"github.com/raidenblackout/CTB/internal/portfolio"
)

const (
	defaultOrderRetries  = 2
	defaultRetryInterval = time.Second
)

// Executor submits a plan's orders and applies the resulting fills to the
// ledger. Each entry is independent: a failed order is logged and skipped,
// and the rest of the plan still runs.
type Executor struct {
	client        exchange.Client
	ledger        *portfolio.Ledger
	logger        *logger.Logger
	maxRetries    uint64
	retryInterval time.Duration
}

func NewExecutor(client exchange.Client, ledger *portfolio.Ledger, log *logger.Logger) *Executor {
	return &Executor{
		client:        client,
		ledger:        ledger,
		logger:        log,
		maxRetries:    defaultOrderRetries,
		retryInterval: defaultRetryInterval,
	}
}

// ExecResult reports what happened to each plan entry.
type ExecResult struct {
	Fills  []portfolio.Fill
	Failed []DroppedSignal
}

// Execute runs the plan front to back. Transient order errors are retried
// with a capped constant backoff; rejections are terminal for the entry.
// A plan is single-use: entries already attempted are never resubmitted.
func (x *Executor) Execute(ctx context.Context, plan []PlanEntry) ExecResult {
	var result ExecResult
	for _, entry := range plan {
		fill, err := x.placeWithRetry(ctx, entry)
		if err != nil {
			x.logger.Error("order failed",
				zap.String("strategy", entry.Signal.Strategy),
				zap.String("symbol", entry.Signal.Symbol),
				zap.String("side", string(entry.Signal.Side)),
				zap.String("qty", entry.Quantity.String()),
				zap.Error(err))
			result.Failed = append(result.Failed, DroppedSignal{Signal: entry.Signal, Reason: err.Error()})
			continue
		}
		if err := x.ledger.Apply(fill); err != nil {
			// Exchange accepted but the books reject it; record the failure
			// and keep the ledger as it was.
			x.logger.Error("fill not applied",
				zap.String("order_id", fill.OrderID),
				zap.String("symbol", fill.Symbol),
				zap.Error(err))
			result.Failed = append(result.Failed, DroppedSignal{Signal: entry.Signal, Reason: err.Error()})
			continue
		}
		x.logger.Info("order filled",
			zap.String("order_id", fill.OrderID),
			zap.String("strategy", fill.Strategy),
			zap.String("symbol", fill.Symbol),
			zap.String("side", string(fill.Side)),
			zap.String("qty", fill.Quantity.String()),
			zap.String("price", fill.Price.String()))
		result.Fills = append(result.Fills, fill)
	}
	return result
}

func (x *Executor) placeWithRetry(ctx context.Context, entry PlanEntry) (portfolio.Fill, error) {
	req := exchange.OrderRequest{
		Symbol:        entry.Signal.Symbol,
		Side:          entry.Signal.Side,
		Quantity:      entry.Quantity,
		Strategy:      entry.Signal.Strategy,
		ClientOrderID: uuid.NewString(),
	}

	var fill portfolio.Fill
	op := func() error {
		var err error
		fill, err = x.client.PlaceOrder(ctx, req)
		if errors.Is(err, exchange.ErrOrderRejected) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(x.retryInterval), x.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return portfolio.Fill{}, err
	}
	return fill, nil
}
