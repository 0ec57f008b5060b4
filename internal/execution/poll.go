package execution

import (
	"context"
	"time"
)

// PollConfig bounds a polling loop
type PollConfig struct {
	Attempts int
	Interval time.Duration
}

// DefaultPoll is 10 attempts 200ms apart
var DefaultPoll = PollConfig{Attempts: 10, Interval: 200 * time.Millisecond}

// Poll calls fetch until ready accepts the value or attempts run out.
// It returns the last value fetched and whether it was ready.
// A fetch error or a cancelled ctx stops polling immediately.
func Poll[T any](ctx context.Context, cfg PollConfig, fetch func(context.Context) (T, error), ready func(T) bool) (T, bool, error) {
	var last T

	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		v, err := fetch(ctx)
		if err != nil {
			return last, false, err
		}
		last = v
		if ready(v) {
			return v, true, nil
		}

		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, false, ctx.Err()
		case <-timer.C:
		}
	}

	return last, false, nil
}

// sleep waits d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
