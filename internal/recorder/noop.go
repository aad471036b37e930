package recorder

import "github.com/raidenblackout/CTB/internal/portfolio"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSignal(_ *SignalEvent) error                { return nil }
func (n *NoopRecorder) RecordFill(_ int64, _ portfolio.Fill) error       { return nil }
func (n *NoopRecorder) RecordTick(_ *TickEvent) error                    { return nil }
func (n *NoopRecorder) Close() error                                     { return nil }
