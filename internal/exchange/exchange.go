package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/raidenblackout/CTB/internal/portfolio"
)

// ErrOrderRejected marks a permanent order failure (insufficient funds,
// unknown symbol, exchange-side rejection). The executor does not retry it.
var ErrOrderRejected = errors.New("order rejected")

// OrderRequest is one market order to place.
type OrderRequest struct {
	Symbol        string
	Side          portfolio.Side
	Quantity      decimal.Decimal
	Strategy      string
	ClientOrderID string
}

// Client places orders with an exchange, real or simulated. Transient
// failures are returned as plain errors and may be retried; permanent ones
// wrap ErrOrderRejected.
type Client interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (portfolio.Fill, error)
}
