package command

import (
	"context"
	"time"

	"github.com/subseactl/fleetd/internal/metrics"
	"github.com/subseactl/fleetd/pkg/db/store"
	"github.com/subseactl/fleetd/pkg/logger"
)

// Sweeper is the background ticker task that expires stale QUEUED commands.
// It owns its own lifecycle, started at boot and cancelled on shutdown
// rather than riding on any module-level scheduler.
type Sweeper struct {
	store  store.Querier
	logger *logger.Logger
	ttl    time.Duration
	period time.Duration
}

func NewSweeper(q store.Querier, l *logger.Logger, ttl, period time.Duration) *Sweeper {
	return &Sweeper{store: q, logger: l, ttl: ttl, period: period}
}

// Run blocks until ctx is canceled, sweeping on a fixed cadence. It runs one
// pass immediately so a freshly booted process doesn't wait a full period
// before clearing commands that expired while it was down.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.sweep(ctx)

	s.logger.Info("command sweeper started", "ttl", s.ttl, "period", s.period)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.ttl)

	n, err := s.store.SweepExpireQueued(ctx, cutoff)
	if err != nil {
		s.logger.Error("command sweep failed", "error", err)
		return
	}
	if n > 0 {
		metrics.CommandsExpiredTotal.Add(float64(n))
		s.logger.Info("expired stale commands", "count", n)
	}
}
