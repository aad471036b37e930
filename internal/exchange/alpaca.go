package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/raidenblackout/CTB/internal/logger"
	"github.com/raidenblackout/CTB/internal/portfolio"
)

// AlpacaConfig holds credentials for the Alpaca crypto trading API.
type AlpacaConfig struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	BaseURL   string `yaml:"base_url"`
}

const (
	defaultFillPollInterval = 500 * time.Millisecond
	defaultFillPollTimeout  = 15 * time.Second
)

// alpacaAPI is the slice of the Alpaca SDK the client uses.
type alpacaAPI interface {
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	GetOrder(orderID string) (*alpaca.Order, error)
	CancelOrder(orderID string) error
}

// AlpacaClient places real orders through Alpaca. Crypto orders are
// market + GTC; Alpaca accepts pair symbols in the BTC/USD form directly.
type AlpacaClient struct {
	api    alpacaAPI
	logger *logger.Logger

	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewAlpacaClient(cfg AlpacaConfig, log *logger.Logger) *AlpacaClient {
	opts := alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.SecretKey,
		BaseURL:   cfg.BaseURL,
	}
	return &AlpacaClient{
		api:          alpaca.NewClient(opts),
		logger:       log,
		pollInterval: defaultFillPollInterval,
		pollTimeout:  defaultFillPollTimeout,
	}
}

// PlaceOrder implements Client.
func (c *AlpacaClient) PlaceOrder(ctx context.Context, req OrderRequest) (portfolio.Fill, error) {
	if err := ctx.Err(); err != nil {
		return portfolio.Fill{}, err
	}
	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}
	qty := req.Quantity
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpacaSide(req.Side),
		Type:          alpaca.Market,
		TimeInForce:   alpaca.GTC,
		ClientOrderID: clientOrderID,
	}

	order, err := c.api.PlaceOrder(orderReq)
	if err != nil {
		c.logger.Error("place order failed",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.String("qty", req.Quantity.String()),
			zap.Error(err))
		if isRejection(err) {
			return portfolio.Fill{}, fmt.Errorf("%w: %v", ErrOrderRejected, err)
		}
		return portfolio.Fill{}, err
	}

	c.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("status", string(order.Status)))

	// Market orders come back accepted first and fill moments later.
	// Re-placing would duplicate the client order ID, so wait for the
	// fill here instead of surfacing a retryable error.
	order, err = c.awaitFill(ctx, order)
	if err != nil {
		return portfolio.Fill{}, err
	}

	filledQty := order.FilledQty
	if filledQty.IsZero() {
		filledQty = req.Quantity
	}
	filledAt := time.Now().UTC()
	if order.FilledAt != nil {
		filledAt = order.FilledAt.UTC()
	}
	return portfolio.Fill{
		OrderID:   order.ID,
		Strategy:  req.Strategy,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  filledQty,
		Price:     *order.FilledAvgPrice,
		Fee:       decimal.Zero,
		Timestamp: filledAt,
	}, nil
}

// awaitFill polls the order until it has an average fill price or reaches a
// terminal status. On timeout it cancels the order, then checks once more in
// case the fill raced the cancel; an order that can no longer fill is a
// rejection, never a retryable error.
func (c *AlpacaClient) awaitFill(ctx context.Context, order *alpaca.Order) (*alpaca.Order, error) {
	deadline := time.Now().Add(c.pollTimeout)
	for order.FilledAvgPrice == nil {
		if terminal(order.Status) {
			return nil, fmt.Errorf("%w: order %s ended %s unfilled", ErrOrderRejected, order.ID, order.Status)
		}
		if time.Now().After(deadline) {
			if err := c.api.CancelOrder(order.ID); err != nil {
				c.logger.Warn("cancel of unfilled order failed",
					zap.String("order_id", order.ID),
					zap.Error(err))
			}
			if refreshed, err := c.api.GetOrder(order.ID); err == nil && refreshed.FilledAvgPrice != nil {
				return refreshed, nil
			}
			return nil, fmt.Errorf("%w: order %s unfilled after %s, canceled", ErrOrderRejected, order.ID, c.pollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		refreshed, err := c.api.GetOrder(order.ID)
		if err != nil {
			c.logger.Warn("order status poll failed",
				zap.String("order_id", order.ID),
				zap.Error(err))
			continue
		}
		order = refreshed
	}
	return order, nil
}

func terminal(status string) bool {
	switch status {
	case "canceled", "expired", "rejected", "done_for_day", "stopped", "suspended":
		return true
	}
	return false
}

func alpacaSide(side portfolio.Side) alpaca.Side {
	if side == portfolio.SideSell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

// isRejection distinguishes terminal order rejections from transient API
// errors so the executor knows not to retry them.
func isRejection(err error) bool {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 403 || apiErr.StatusCode == 422
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rejected") || strings.Contains(msg, "insufficient")
}
