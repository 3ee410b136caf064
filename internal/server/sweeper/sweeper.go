// Package sweeper purges expired session records on a fixed interval.
package sweeper

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// Target is whatever can purge expired records; AuthService satisfies it.
type Target interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type Sweeper struct {
	target   Target
	interval time.Duration
	log      logging.Logger
}

func New(target Target, interval time.Duration, log logging.Logger) *Sweeper {
	return &Sweeper{target: target, interval: interval, log: log.With("module", "sweeper")}
}

// Run sweeps once per interval until ctx is done. A failed sweep is logged
// and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info(ctx, "sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.log.Info(ctx, "sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	n, err := s.target.SweepExpired(ctx)
	if err != nil {
		s.log.Error(ctx, "sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info(ctx, "expired sessions purged", "count", n)
	}
}
