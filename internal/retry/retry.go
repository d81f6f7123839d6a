package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Retryable marks an error as safe to retry. Hint, when set, overrides the
// computed backoff before the next attempt (e.g. a Retry-After header).
type Retryable struct {
	Err  error
	Hint time.Duration
}

func (e *Retryable) Error() string { return e.Err.Error() }

func (e *Retryable) Unwrap() error { return e.Err }

// Transient wraps err so a Policy will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Retryable{Err: err}
}

// TransientAfter wraps err with an explicit wait before the next attempt.
func TransientAfter(err error, hint time.Duration) error {
	if err == nil {
		return nil
	}
	return &Retryable{Err: err, Hint: hint}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var r *Retryable
	return errors.As(err, &r)
}

// Policy is a bounded exponential-backoff retry policy. The same policy is
// applied to every transient operation in the pipeline (page fetches, dbt
// invocations) instead of per-call-site retry loops.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxElapsed caps the total time spent across attempts. Zero means no cap.
	MaxElapsed time.Duration
	Multiplier float64
}

// Default returns the policy used for remote API pages.
func Default() Policy {
	return Policy{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     15 * time.Second,
		MaxElapsed:     2 * time.Minute,
		Multiplier:     2,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, or the policy
// is exhausted. Exhaustion returns the last underlying error from op.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.InitialBackoff
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var r *Retryable
		if !errors.As(err, &r) {
			return err
		}
		lastErr = r.Err

		if attempt == attempts {
			break
		}
		if p.MaxElapsed > 0 && time.Since(start) > p.MaxElapsed {
			return fmt.Errorf("retry budget exhausted after %s: %w",
				time.Since(start).Round(time.Millisecond), lastErr)
		}

		wait := backoff
		if r.Hint > 0 {
			wait = r.Hint
		}
		if p.MaxBackoff > 0 && wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}

		log.Debug().
			Err(lastErr).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Transient error, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}
