package admission

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically evicts per-client bookkeeping that has sat idle past
// a configured horizon, keeping the Queue's entry map bounded under churn
// from short-lived or one-off clients.
type Reaper struct {
	q      *Queue
	horizon time.Duration
	period  time.Duration
	logger  *slog.Logger

	done chan struct{}
}

// NewReaper creates a Reaper that sweeps q every period, evicting entries
// untouched for longer than horizon. The sweep loop does not start until Run
// is called.
func NewReaper(q *Queue, horizon, period time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		q:       q,
		horizon: horizon,
		period:  period,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Run starts the sweep loop and blocks until ctx is cancelled or Close is
// called. Intended to be launched in its own goroutine.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-ctx.Done():
			return
		case <-r.done:
			return
		}
	}
}

// Close stops the sweep loop.
func (r *Reaper) Close() {
	close(r.done)
}

func (r *Reaper) sweep() {
	cutoff := time.Now().Add(-r.horizon)
	evicted := r.q.evictIdle(cutoff)
	if evicted > 0 && r.logger != nil {
		r.logger.Debug("admission_reap",
			slog.Int("evicted", evicted),
			slog.Int("tracked", r.q.trackedKeys()),
		)
	}
}
