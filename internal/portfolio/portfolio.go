package portfolio

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Fill is a completed (or simulated) execution of one order.
type Fill struct {
	OrderID  string          `json:"order_id"`
	Strategy string          `json:"strategy"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	// Fee is charged in the quote currency.
	Fee       decimal.Decimal `json:"fee"`
	Timestamp time.Time       `json:"timestamp"`
}

// Position is the held quantity of one trading pair's base asset.
type Position struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	AvgEntry decimal.Decimal `json:"avg_entry"`
}

// Snapshot is an immutable view of the ledger handed to strategies and the
// conflict resolver. Mutating a snapshot never affects the ledger.
type Snapshot struct {
	BaseCurrency string                     `json:"base_currency"`
	Balances     map[string]decimal.Decimal `json:"balances"`
	Positions    map[string]Position        `json:"positions"`
}

// FreeBalance returns the free balance for a currency, zero when absent.
func (s Snapshot) FreeBalance(currency string) decimal.Decimal {
	return s.Balances[currency]
}

// Position returns the position for a pair symbol, zero-valued when absent.
func (s Snapshot) Position(symbol string) Position {
	if p, ok := s.Positions[symbol]; ok {
		return p
	}
	return Position{Symbol: symbol}
}

// Equity values the snapshot in the base currency: free balances plus
// position market value. Prices are keyed by pair symbol ("BTC/USDT") for
// positions and by "CUR/BASE" for converting non-base cash balances;
// balances without a known conversion are skipped.
func (s Snapshot) Equity(prices map[string]float64) decimal.Decimal {
	equity := decimal.Zero
	for currency, balance := range s.Balances {
		if currency == s.BaseCurrency {
			equity = equity.Add(balance)
			continue
		}
		if price, ok := prices[currency+"/"+s.BaseCurrency]; ok {
			equity = equity.Add(balance.Mul(decimal.NewFromFloat(price)))
		}
	}
	for symbol, pos := range s.Positions {
		if price, ok := prices[symbol]; ok {
			equity = equity.Add(pos.Quantity.Mul(decimal.NewFromFloat(price)))
		}
	}
	return equity
}

// SplitSymbol breaks a pair symbol like "BTC/USDT" into base and quote.
func SplitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 {
		return symbol, ""
	}
	return parts[0], parts[1]
}
