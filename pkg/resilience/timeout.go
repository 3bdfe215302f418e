package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds fn by d. The call runs on its own goroutine so a
// backend driver that ignores context cancellation cannot hold up the
// caller; on timeout the goroutine is abandoned and finishes in the
// background. Health probes run through here so one stuck backend does
// not block the whole readiness report.
func WithTimeout(ctx context.Context, d time.Duration, name string, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(bounded)
	}()

	select {
	case err := <-done:
		return err
	case <-bounded.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: no answer within %v: %w", name, d, context.DeadlineExceeded)
	}
}
