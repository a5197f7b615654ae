package tuning

import (
	"context"
	"time"
)

// Clock abstracts the blocking waits of a sweep
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock waits on wall time
type RealClock struct{}

// Sleep blocks for d or until ctx is done
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
