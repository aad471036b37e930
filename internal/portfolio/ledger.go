package portfolio

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance marks a fill that would drive a balance or position
// negative. The ledger rejects it and stays unchanged.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Ledger is the authoritative record of balances and open positions. All
// mutation happens through Apply during the executor's sequential commit
// phase; everything else reads immutable snapshots.
type Ledger struct {
	mu           sync.RWMutex
	baseCurrency string
	balances     map[string]decimal.Decimal
	positions    map[string]Position
}

// NewLedger creates a ledger seeded from the configured initial capital.
func NewLedger(baseCurrency string, initialCapital map[string]float64) *Ledger {
	balances := make(map[string]decimal.Decimal, len(initialCapital))
	for currency, amount := range initialCapital {
		balances[currency] = decimal.NewFromFloat(amount)
	}
	return &Ledger{
		baseCurrency: baseCurrency,
		balances:     balances,
		positions:    make(map[string]Position),
	}
}

// Snapshot returns a deep-copied, immutable view of the ledger.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balances := make(map[string]decimal.Decimal, len(l.balances))
	for k, v := range l.balances {
		balances[k] = v
	}
	positions := make(map[string]Position, len(l.positions))
	for k, v := range l.positions {
		positions[k] = v
	}
	return Snapshot{
		BaseCurrency: l.baseCurrency,
		Balances:     balances,
		Positions:    positions,
	}
}

// Apply mutates balances and positions for one fill. A BUY debits the quote
// currency (cost plus fee) and credits the base position at a new average
// entry; a SELL does the inverse. The ledger is unchanged when an error is
// returned.
func (l *Ledger) Apply(fill Fill) error {
	base, quote := SplitSymbol(fill.Symbol)
	if quote == "" {
		return fmt.Errorf("malformed symbol %q", fill.Symbol)
	}
	if fill.Quantity.Sign() <= 0 {
		return fmt.Errorf("non-positive fill quantity %s for %s", fill.Quantity, fill.Symbol)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cost := fill.Quantity.Mul(fill.Price)
	switch fill.Side {
	case SideBuy:
		total := cost.Add(fill.Fee)
		available := l.balances[quote]
		if available.LessThan(total) {
			return fmt.Errorf("%w: need %s %s to buy %s, have %s", ErrInsufficientBalance, total, quote, base, available)
		}
		l.balances[quote] = available.Sub(total)

		pos := l.positions[fill.Symbol]
		newQty := pos.Quantity.Add(fill.Quantity)
		totalCost := pos.Quantity.Mul(pos.AvgEntry).Add(cost)
		l.positions[fill.Symbol] = Position{
			Symbol:   fill.Symbol,
			Quantity: newQty,
			AvgEntry: totalCost.Div(newQty),
		}

	case SideSell:
		pos := l.positions[fill.Symbol]
		if pos.Quantity.LessThan(fill.Quantity) {
			return fmt.Errorf("%w: need %s %s, have %s", ErrInsufficientBalance, fill.Quantity, base, pos.Quantity)
		}
		remaining := pos.Quantity.Sub(fill.Quantity)
		if remaining.Sign() == 0 {
			delete(l.positions, fill.Symbol)
		} else {
			pos.Quantity = remaining
			l.positions[fill.Symbol] = pos
		}
		l.balances[quote] = l.balances[quote].Add(cost.Sub(fill.Fee))

	default:
		return fmt.Errorf("unknown fill side %q", fill.Side)
	}
	return nil
}

// checkpoint is the on-disk shape of the ledger.
type checkpoint struct {
	BaseCurrency string                     `json:"base_currency"`
	Balances     map[string]decimal.Decimal `json:"balances"`
	Positions    map[string]Position        `json:"positions"`
}

// Save writes the ledger state to path as JSON.
func (l *Ledger) Save(path string) error {
	snap := l.Snapshot()
	data, err := json.MarshalIndent(checkpoint(snap), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load replaces the ledger state from a checkpoint file.
func (l *Ledger) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return err
	}
	if cp.Balances == nil {
		cp.Balances = make(map[string]decimal.Decimal)
	}
	if cp.Positions == nil {
		cp.Positions = make(map[string]Position)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cp.BaseCurrency != "" {
		l.baseCurrency = cp.BaseCurrency
	}
	l.balances = cp.Balances
	l.positions = cp.Positions
	return nil
}
