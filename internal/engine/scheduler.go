package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/raidenblackout/CTB/internal/logger"
)

// Scheduler drives the engine at a fixed interval. If a tick is still
// running when the next one is due, the new tick is skipped rather than
// queued, so a slow tick can never stack work behind itself.
type Scheduler struct {
	cron     *cron.Cron
	interval time.Duration
	logger   *logger.Logger
}

func NewScheduler(interval time.Duration, log *logger.Logger) *Scheduler {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))
	return &Scheduler{cron: c, interval: interval, logger: log}
}

// Run fires tick immediately, then on every interval until ctx is
// cancelled. Each tick gets a deadline of one interval.
func (s *Scheduler) Run(ctx context.Context, tick func(context.Context)) error {
	runOnce := func() {
		tickCtx, cancel := context.WithTimeout(ctx, s.interval)
		defer cancel()
		tick(tickCtx)
	}

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, runOnce); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	runOnce()
	s.cron.Start()

	<-ctx.Done()
	stopped := s.cron.Stop()
	// Let an in-flight tick finish before returning.
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}
