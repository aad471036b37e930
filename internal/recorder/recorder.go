package recorder

import (
	"time"

	"github.com/raidenblackout/CTB/internal/portfolio"
	"github.com/raidenblackout/CTB/internal/strategy"
)

// SignalEvent records a signal emitted by a strategy during a tick,
// together with what the resolver decided to do with it.
type SignalEvent struct {
	TickID   int64
	Strategy string
	Symbol   string
	Side     string
	Size     float64
	Reason   string
	Outcome  string // "planned", "dropped_conflict", "dropped_unaffordable", "rejected_risk"
}

// TickEvent summarizes one scheduler tick.
type TickEvent struct {
	TickID      int64
	StartedAt   time.Time
	Duration    time.Duration
	Signals     int
	Planned     int
	Executed    int
	Failed      int
	Equity      float64
	Err         string
}

// Recorder persists agent activity for later analysis.
type Recorder interface {
	RecordSignal(evt *SignalEvent) error
	RecordFill(tickID int64, fill portfolio.Fill) error
	RecordTick(evt *TickEvent) error
	Close() error
}

// OutcomeFor maps a planned signal to its recorded form.
func OutcomeFor(sig strategy.Signal, outcome string, tickID int64) *SignalEvent {
	return &SignalEvent{
		TickID:   tickID,
		Strategy: sig.Strategy,
		Symbol:   sig.Symbol,
		Side:     string(sig.Side),
		Size:     sig.SizePercent,
		Reason:   sig.Reason,
		Outcome:  outcome,
	}
}
