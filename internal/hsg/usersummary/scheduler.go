package usersummary

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval mirrors user_summary.py's 30-minute default tick.
const DefaultInterval = 30 * time.Minute

// Scheduler periodically refreshes every known user's summary line, the Go
// port of user_summary_loop.
type Scheduler struct {
	Store    Store
	Interval time.Duration
}

// NewScheduler constructs a Scheduler with DefaultInterval filled in when
// interval is zero.
func NewScheduler(s Store, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{Store: s, Interval: interval}
}

// RunOnce refreshes every user's summary once, logging the count touched.
func (s *Scheduler) RunOnce(ctx context.Context) {
	nowMs := time.Now().UnixMilli()
	n := RefreshAll(ctx, s.Store, nowMs)
	log.Debug().Int("users_updated", n).Msg("hsg: user summary refresh pass complete")
}

// Run blocks, invoking RunOnce on Interval until ctx is cancelled. Callers
// run this in its own goroutine, draining it via ctx cancellation at
// shutdown per §9's "explicit sync.WaitGroup" lifecycle note.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
