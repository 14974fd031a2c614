package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 20 * time.Millisecond, MaxDelay: time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// Retry runs attempt until it returns something other than ErrConflict or the
// policy is exhausted. The last conflict is returned wrapped.
func Retry(ctx context.Context, p RetryPolicy, attempt func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	var err error
	for i := 0; i < p.MaxAttempts; i++ {
		err = attempt()
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if i == p.MaxAttempts-1 {
			break
		}
		t := time.NewTimer(p.delay(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", p.MaxAttempts, err)
}

// Bounded gives an operation its deadline. d <= 0 means no deadline.
func Bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
