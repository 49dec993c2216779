// Package retry runs an operation up to a fixed number of attempts.
// Errors wrapped with Permanent stop the loop at once; everything else is
// tried again after the policy delay.
package retry

import (
	"context"
	"errors"
	"time"
)

// PermanentError marks an error another attempt cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it without retrying. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a Permanent wrapper.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes the attempt schedule.
type Policy struct {
	// Attempts includes the first call (3).
	Attempts int

	// Delay is the wait before the second attempt (2s). Zero retries immediately.
	Delay time.Duration

	// Backoff multiplies the delay after every attempt. Values below 1 keep it constant.
	Backoff float64

	// MaxDelay caps a growing delay. Zero means no cap.
	MaxDelay time.Duration

	// OnRetry is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep replaces the real wait; tests use it to record delays.
	Sleep SleepFunc
}

// MailPolicy is the relay schedule: attempts with a constant delay.
func MailPolicy(attempts int, delay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay}
}

// Retrier executes operations under one Policy.
type Retrier struct {
	policy Policy
}

// New fills zero fields of p and returns a Retrier.
func New(p Policy) *Retrier {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Delay < 0 {
		p.Delay = 2 * time.Second
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return &Retrier{policy: p}
}

// Attempts returns the configured attempt budget.
func (r *Retrier) Attempts() int {
	return r.policy.Attempts
}

// Do calls operation until it succeeds, returns a Permanent error, the budget is
// spent, or ctx is done. The returned error is the last attempt's error with the
// Permanent wrapper removed.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var last error
	delay := r.policy.Delay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}

		var p *PermanentError
		if errors.As(err, &p) {
			return p.Err
		}
		last = err
		if attempt >= r.policy.Attempts {
			return last
		}

		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, last, delay)
		}
		if err := r.policy.Sleep(ctx, delay); err != nil {
			return last
		}
		delay = r.next(delay)
	}
}

func (r *Retrier) next(d time.Duration) time.Duration {
	if r.policy.Backoff <= 1 {
		return d
	}
	d = time.Duration(float64(d) * r.policy.Backoff)
	if r.policy.MaxDelay > 0 && d > r.policy.MaxDelay {
		d = r.policy.MaxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
