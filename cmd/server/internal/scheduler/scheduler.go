// Package scheduler triggers the automatic sweep on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/gijibot/gijibot/cmd/server/internal/pipeline"
	"github.com/gijibot/gijibot/pkg/logger"
)

// Sweeper is the subset of the orchestrator the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (pipeline.SweepResult, error)
}

// Scheduler runs periodic sweeps until its context is cancelled.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	log      *slog.Logger
}

func New(sweeper Sweeper, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{sweeper: sweeper, interval: interval, log: log}
}

// Run blocks until ctx is cancelled. The first sweep fires after one
// full interval, not at startup, so a crash-looping process does not
// hammer the upstream APIs.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("sweep scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	res, err := s.sweeper.Sweep(ctx)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.LogPipelineStage(s.log, "sweep", "error", "", elapsed, "sweep_failed")
		s.log.Error("sweep failed", "error", err)
		return
	}
	logger.LogPipelineStage(s.log, "sweep", "success", "", elapsed, "")
	s.log.Info("sweep finished",
		"examined", res.Examined,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"failed", res.Failed)
}
