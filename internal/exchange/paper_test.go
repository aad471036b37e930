package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/raidenblackout/CTB/internal/portfolio"
)

func paperOrder(side portfolio.Side, qty float64) OrderRequest {
	return OrderRequest{
		Symbol:   "BTC/USDT",
		Side:     side,
		Quantity: decimal.NewFromFloat(qty),
		Strategy: "test",
	}
}

func TestPaperBuyAppliesSlippageAndFee(t *testing.T) {
	p := NewPaperClient(PaperConfig{SlippageFactor: 0.01, CommissionRate: 0.001})
	p.UpdatePrice("BTC/USDT", 50000)

	fill, err := p.PlaceOrder(context.Background(), paperOrder(portfolio.SideBuy, 1))
	require.NoError(t, err)
	require.True(t, fill.Price.Equal(decimal.NewFromFloat(50500)), "got %s", fill.Price)
	require.True(t, fill.Fee.Equal(decimal.NewFromFloat(50.5)), "got %s", fill.Fee)
	require.NotEmpty(t, fill.OrderID)
	require.Equal(t, portfolio.SideBuy, fill.Side)
}

func TestPaperSellSlipsDownward(t *testing.T) {
	p := NewPaperClient(PaperConfig{SlippageFactor: 0.01, CommissionRate: 0})
	p.UpdatePrice("BTC/USDT", 50000)

	fill, err := p.PlaceOrder(context.Background(), paperOrder(portfolio.SideSell, 1))
	require.NoError(t, err)
	require.True(t, fill.Price.Equal(decimal.NewFromFloat(49500)), "got %s", fill.Price)
}

func TestPaperRejectsUnknownSymbol(t *testing.T) {
	p := NewPaperClient(PaperConfig{})

	_, err := p.PlaceOrder(context.Background(), paperOrder(portfolio.SideBuy, 1))
	require.ErrorIs(t, err, ErrOrderRejected)
}

func TestPaperRejectsNonPositiveQuantity(t *testing.T) {
	p := NewPaperClient(PaperConfig{})
	p.UpdatePrice("BTC/USDT", 50000)

	_, err := p.PlaceOrder(context.Background(), paperOrder(portfolio.SideBuy, 0))
	require.ErrorIs(t, err, ErrOrderRejected)
}

func TestPaperPriceUpdatesApply(t *testing.T) {
	p := NewPaperClient(PaperConfig{SlippageFactor: 0.01, CommissionRate: 0.001})
	p.UpdatePrice("BTC/USDT", 50000)
	p.UpdatePrice("BTC/USDT", 51000)

	fill, err := p.PlaceOrder(context.Background(), paperOrder(portfolio.SideBuy, 1))
	require.NoError(t, err)
	require.True(t, fill.Price.Equal(decimal.NewFromFloat(51510)), "got %s", fill.Price)
}
