// Package retention prunes records that have aged out: admins that have
// been inactive past the retention window and status requests that were
// resolved before it.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/wardenhq/warden/internal/directory"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/requests"
)

// Sweeper periodically deletes aged-out records.
type Sweeper struct {
	admins   directory.Store
	requests requests.Store
	window   time.Duration
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
}

// NewSweeper creates a retention sweeper. window is how long records are
// kept after deactivation/resolution.
func NewSweeper(admins directory.Store, reqs requests.Store, window, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		admins:   admins,
		requests: reqs,
		window:   window,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

// Sweep runs one pass. Pending requests are never touched; only
// terminal records older than the window go.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.window)

	deleted, err := s.admins.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn("retention sweep of admins failed", "error", err)
	} else if deleted > 0 {
		metrics.RetentionDeletedTotal.WithLabelValues("admins").Add(float64(deleted))
		s.logger.Info("retention sweep removed inactive admins", "count", deleted, "cutoff", cutoff)
	}

	deleted, err = s.requests.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn("retention sweep of requests failed", "error", err)
	} else if deleted > 0 {
		metrics.RetentionDeletedTotal.WithLabelValues("requests").Add(float64(deleted))
		s.logger.Info("retention sweep removed resolved requests", "count", deleted, "cutoff", cutoff)
	}
}
