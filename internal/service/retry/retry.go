// Package retry runs an operation under a bounded attempt policy with linear backoff.
package retry

import (
	"context"
	"errors"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds the attempts of one operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc
}

// Outcome reports how an operation finished. Err is the last error seen when
// no attempt succeeded.
type Outcome[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// Succeeded reports whether some attempt returned without error.
func (o Outcome[T]) Succeeded() bool {
	return o.Err == nil
}

// PermanentError marks a failure that another attempt cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so Do stops after the current attempt. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// New returns a Policy with maxAttempts clamped to at least one.
func New(maxAttempts int, baseDelay time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

// Delay is the pause after failed attempt i (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt+1)
}

// Do runs op until it succeeds or the attempts are exhausted. There is no
// sleep after the final attempt. A cancelled context or a Permanent error
// stops further attempts.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) Outcome[T] {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var out Outcome[T]
	for i := 0; i < maxAttempts; i++ {
		out.Attempts = i + 1
		v, err := op(ctx, i)
		if err == nil {
			out.Value, out.Err = v, nil
			return out
		}
		out.Err = err

		if i == maxAttempts-1 || IsPermanent(err) {
			break
		}
		if d := p.Delay(i); d > 0 {
			if serr := sleep(ctx, d); serr != nil {
				return out
			}
		} else if ctx.Err() != nil {
			return out
		}
	}
	return out
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
