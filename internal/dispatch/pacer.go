package dispatch

import (
	"context"
	"time"
)

// Pacer suspends the engine between two consecutive attempts on the same session.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedInterval waits the same rate-limit interval between every pair of sends.
type FixedInterval struct {
	interval time.Duration
}

func NewFixedInterval(interval time.Duration) *FixedInterval {
	return &FixedInterval{interval: interval}
}

func (p *FixedInterval) Wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
