package workflow

import (
	"context"
	"time"

	"ctoengine/pkg/logx"
	"ctoengine/pkg/metrics"
)

// Sweeper periodically reclaims environments whose tasks stopped making
// progress, covering crashed attempts that escaped per-attempt cleanup.
type Sweeper struct {
	envs     Environments
	recorder *metrics.Recorder
	interval time.Duration
	maxAge   time.Duration
	logger   *logx.Logger
}

// NewSweeper creates a sweeper. recorder may be nil.
func NewSweeper(envs Environments, recorder *metrics.Recorder, interval, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		envs:     envs,
		recorder: recorder,
		interval: interval,
		maxAge:   maxAge,
		logger:   logx.NewLogger("sweeper"),
	}
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one reclamation pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	if n := s.envs.CleanupStale(ctx, s.maxAge); n > 0 {
		s.logger.Warn("Reclaimed %d stale environments", n)
	}
	if s.recorder != nil {
		s.recorder.SetActiveEnvironments(s.envs.ActiveCount())
	}
}
