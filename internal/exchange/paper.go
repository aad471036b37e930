package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/raidenblackout/CTB/internal/portfolio"
)

const (
	defaultSlippage   = 0.001
	defaultCommission = 0.001
)

// PaperClient simulates order execution against prices fed by the engine.
// Market orders fill immediately at the current price adjusted for slippage,
// with a commission charged in the quote currency. Balance accounting lives
// in the ledger, not here.
type PaperClient struct {
	slippageFactor float64
	commissionRate float64

	mu     sync.RWMutex
	prices map[string]float64
}

// PaperConfig tunes the simulation.
type PaperConfig struct {
	SlippageFactor float64 `yaml:"slippage_factor"`
	CommissionRate float64 `yaml:"commission_rate"`
}

// NewPaperClient creates a paper trading client.
func NewPaperClient(cfg PaperConfig) *PaperClient {
	slippage := cfg.SlippageFactor
	if slippage == 0 {
		slippage = defaultSlippage
	}
	commission := cfg.CommissionRate
	if commission == 0 {
		commission = defaultCommission
	}
	return &PaperClient{
		slippageFactor: slippage,
		commissionRate: commission,
		prices:         make(map[string]float64),
	}
}

// CostHeadroom is the multiplier a buy's notional grows by once slippage
// and commission apply. The resolver sizes buys against it so a fill at the
// simulated price stays affordable.
func (p *PaperClient) CostHeadroom() float64 {
	return (1 + p.slippageFactor) * (1 + p.commissionRate)
}

// UpdatePrice feeds the current market price for a symbol. The engine calls
// this each tick before the commit phase.
func (p *PaperClient) UpdatePrice(symbol string, price float64) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

// PlaceOrder implements Client.
func (p *PaperClient) PlaceOrder(ctx context.Context, req OrderRequest) (portfolio.Fill, error) {
	if err := ctx.Err(); err != nil {
		return portfolio.Fill{}, err
	}
	p.mu.RLock()
	price, ok := p.prices[req.Symbol]
	p.mu.RUnlock()
	if !ok || price <= 0 {
		return portfolio.Fill{}, fmt.Errorf("%w: no price for %s", ErrOrderRejected, req.Symbol)
	}
	if req.Quantity.Sign() <= 0 {
		return portfolio.Fill{}, fmt.Errorf("%w: non-positive quantity %s", ErrOrderRejected, req.Quantity)
	}

	execPrice := decimal.NewFromFloat(price)
	slip := decimal.NewFromFloat(p.slippageFactor)
	if req.Side == portfolio.SideBuy {
		execPrice = execPrice.Mul(decimal.NewFromInt(1).Add(slip))
	} else {
		execPrice = execPrice.Mul(decimal.NewFromInt(1).Sub(slip))
	}
	fee := req.Quantity.Mul(execPrice).Mul(decimal.NewFromFloat(p.commissionRate))

	orderID := req.ClientOrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	return portfolio.Fill{
		OrderID:   orderID,
		Strategy:  req.Strategy,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     execPrice,
		Fee:       fee,
		Timestamp: time.Now().UTC(),
	}, nil
}
