package travel

import (
	"context"
	"errors"
	"time"
)

// retry runs fn up to Attempts times. Semantic misses, permanent errors and
// context cancellation end the loop at once.
func (r *Resolver) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		err = fn(callCtx)
		cancel()
		if err == nil || !retryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt == r.opts.Attempts {
			break
		}
		r.log.Warn("travel_call_retry", "op", op, "attempt", attempt, "error", err.Error())
		if err := sleep(ctx, r.opts.Backoff*time.Duration(attempt)); err != nil {
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrLocationNotFound), errors.Is(err, ErrJourneyNotFound):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case IsPermanent(err):
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
