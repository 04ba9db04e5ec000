// Package scheduler drives recurring engine runs on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"TenderWatch/internal/ports"
)

// TickerScheduler fires the job immediately and then on every interval tick.
type TickerScheduler struct {
	interval time.Duration
	stop     chan struct{}
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a scheduler with the given interval.
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TickerScheduler{interval: interval}
}

// Start begins ticking; no-op if already started.
func (c *TickerScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if c.stop != nil {
		return nil
	}

	c.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case t := <-ticker.C:
				job(t)
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine.
func (c *TickerScheduler) Stop(ctx context.Context) error {
	if c.stop == nil {
		return nil
	}
	close(c.stop)
	c.stop = nil
	return nil
}
