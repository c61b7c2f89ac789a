// Package retry wraps bounded exponential backoff for outbound API calls.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how long and how often a failing call is retried
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultPolicy is used by both the GitHub and Discord transports
var DefaultPolicy = Policy{
	InitialInterval: 1 * time.Second,
	MaxInterval:     30 * time.Second,
	MaxElapsedTime:  2 * time.Minute,
	MaxRetries:      5,
}

// newBackOff returns a fresh instance; BackOff implementations are stateful
func (p Policy) newBackOff(ctx context.Context, hint *time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = p.MaxElapsedTime

	var b backoff.BackOff = bo
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	b = &hintBackOff{BackOff: b, hint: hint, budget: p.MaxElapsedTime}
	return backoff.WithContext(b, ctx)
}

// Permanent marks an error as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// AfterError carries a server-provided wait before the next attempt
type AfterError struct {
	Wait time.Duration
	Err  error
}

func (e *AfterError) Error() string { return e.Err.Error() }

func (e *AfterError) Unwrap() error { return e.Err }

// After marks err as retryable no sooner than wait. A non-positive wait
// leaves err to the regular backoff schedule.
func After(wait time.Duration, err error) error {
	if wait <= 0 {
		return err
	}
	return &AfterError{Wait: wait, Err: err}
}

// hintBackOff substitutes the server's wait for the computed interval while
// still counting the attempt against the policy.
type hintBackOff struct {
	backoff.BackOff
	hint   *time.Duration
	budget time.Duration
}

func (b *hintBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop || *b.hint <= 0 {
		return next
	}
	wait := *b.hint
	*b.hint = 0
	if b.budget > 0 && wait > b.budget {
		return backoff.Stop
	}
	return wait
}

// Do runs op until it succeeds, returns a permanent error, or the policy is
// exhausted. The last error is returned unwrapped from any permanent marker.
func Do(ctx context.Context, p Policy, name string, op func() error) error {
	attempt := 0
	var hint time.Duration
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op()
		var after *AfterError
		if errors.As(err, &after) {
			hint = after.Wait
		}
		return err
	}, p.newBackOff(ctx, &hint), func(err error, wait time.Duration) {
		slog.Warn("Retrying after transient failure", "operation", name, "attempt", attempt, "wait", wait, "error", err)
	})

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
