package risk

import (
	"time"

	"go.uber.org/zap"

	"github.com/raidenblackout/CTB/internal/logger"
	"github.com/raidenblackout/CTB/internal/portfolio"
	"github.com/raidenblackout/CTB/internal/strategy"
)

// Config bounds what the agent is allowed to trade in a single tick.
// Zero values disable the corresponding check.
type Config struct {
	KillSwitch          bool    `yaml:"kill_switch"`
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade"`
	MaxSizePercent      float64 `yaml:"max_size_percent" validate:"gte=0,lte=1"`
	TradeCooldownSec    int     `yaml:"trade_cooldown_seconds" validate:"gte=0"`
}

// GateContext carries the per-tick state the gate needs to judge signals.
type GateContext struct {
	Now         time.Time
	Prices      map[string]float64
	Snapshot    portfolio.Snapshot
	LastTradeAt map[string]time.Time
}

// Gate screens raw strategy signals before conflict resolution. Rejected
// signals are dropped and logged, never escalated: a bad signal must not
// stop the rest of the tick.
type Gate struct {
	cfg    Config
	logger *logger.Logger
}

func NewGate(cfg Config, log *logger.Logger) *Gate {
	return &Gate{cfg: cfg, logger: log}
}

// Filter returns the subset of signals that pass every enabled check.
func (g *Gate) Filter(signals []strategy.Signal, ctx GateContext) []strategy.Signal {
	if g.cfg.KillSwitch {
		if len(signals) > 0 {
			g.logger.Warn("kill switch enabled, dropping all signals", zap.Int("count", len(signals)))
		}
		return nil
	}

	approved := make([]strategy.Signal, 0, len(signals))
	for _, sig := range signals {
		if reason := g.reject(sig, ctx); reason != "" {
			g.logger.Info("signal rejected",
				zap.String("strategy", sig.Strategy),
				zap.String("symbol", sig.Symbol),
				zap.String("side", string(sig.Side)),
				zap.String("reason", reason))
			continue
		}
		approved = append(approved, sig)
	}
	return approved
}

func (g *Gate) reject(sig strategy.Signal, ctx GateContext) string {
	if sig.SizePercent <= 0 {
		return "invalid_size"
	}
	if g.cfg.MaxSizePercent > 0 && sig.SizePercent > g.cfg.MaxSizePercent {
		return "max_size_exceeded"
	}
	if g.cfg.TradeCooldownSec > 0 {
		if last, ok := ctx.LastTradeAt[sig.Symbol]; ok {
			cooldown := time.Duration(g.cfg.TradeCooldownSec) * time.Second
			if ctx.Now.Sub(last) < cooldown {
				return "cooldown_active"
			}
		}
	}
	if sig.Side == portfolio.SideSell {
		if pos := ctx.Snapshot.Position(sig.Symbol); pos.Quantity.Sign() <= 0 {
			return "no_position_to_sell"
		}
	}
	if g.cfg.MaxNotionalPerTrade > 0 && sig.Side == portfolio.SideBuy {
		_, quote := portfolio.SplitSymbol(sig.Symbol)
		free, _ := ctx.Snapshot.FreeBalance(quote).Float64()
		if sig.SizePercent*free > g.cfg.MaxNotionalPerTrade {
			return "max_notional_exceeded"
		}
	}
	return ""
}
