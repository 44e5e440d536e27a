package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Sweeper periodically evicts queued messages older than the retention
// window. It only ever touches the offline queue; accounts and live
// connections are left alone.
type Sweeper struct {
	interval  time.Duration
	retention time.Duration
	clock     clock.Clock
	sweep     func(cutoff time.Time) int
}

// NewSweeper creates a sweeper. sweep is called with the eviction cutoff and
// must be safe to run concurrently with inbound traffic (the Relay's SweepOnce
// is).
func NewSweeper(interval, retention time.Duration, clk clock.Clock, sweep func(time.Time) int) *Sweeper {
	return &Sweeper{interval: interval, retention: retention, clock: clk, sweep: sweep}
}

// Run sweeps on every interval tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	t := s.clock.Ticker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if dropped := s.sweep(now.Add(-s.retention)); dropped > 0 {
				slog.Info("sweeper: evicted expired messages", "count", dropped)
			}
		}
	}
}
