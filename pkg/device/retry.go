package device

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryPolicy bounds each device call.
type RetryPolicy struct {
	Attempts int           // total tries per call, at least 1
	Timeout  time.Duration // per-attempt deadline, 0 for none
	Backoff  time.Duration // sleep before try n is n*Backoff
}

// DefaultRetryPolicy matches the command timeout EdgeOS saves need.
var DefaultRetryPolicy = RetryPolicy{
	Attempts: 3,
	Timeout:  30 * time.Second,
	Backoff:  time.Second,
}

// Retry wraps a Device with per-call timeouts and retries.
type Retry struct {
	dev    Device
	policy RetryPolicy
}

// WithRetry returns dev wrapped in policy.
func WithRetry(dev Device, policy RetryPolicy) *Retry {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Retry{dev: dev, policy: policy}
}

// FetchConfig implements Device.
func (r *Retry) FetchConfig(ctx context.Context) (string, error) {
	var out string
	err := r.do(ctx, "fetch", retryAll, func(ctx context.Context) error {
		var err error
		out, err = r.dev.FetchConfig(ctx)
		return err
	})
	return out, err
}

// PushCommands implements Device. A committing push is retried only
// when the connection was never established, since a failure after that
// point may have left the commit applied.
func (r *Retry) PushCommands(ctx context.Context, commands []string, commit bool, comment string) (string, error) {
	retryable := retryAll
	if commit {
		retryable = retryDialOnly
	}
	var out string
	err := r.do(ctx, "push", retryable, func(ctx context.Context) error {
		var err error
		out, err = r.dev.PushCommands(ctx, commands, commit, comment)
		return err
	})
	return out, err
}

// SaveConfig implements Device.
func (r *Retry) SaveConfig(ctx context.Context) error {
	return r.do(ctx, "save", retryAll, r.dev.SaveConfig)
}

// CompareSaved implements Device.
func (r *Retry) CompareSaved(ctx context.Context) (string, error) {
	var out string
	err := r.do(ctx, "compare saved", retryAll, func(ctx context.Context) error {
		var err error
		out, err = r.dev.CompareSaved(ctx)
		return err
	})
	return out, err
}

func retryAll(err error) bool {
	return !errors.Is(err, ErrInvalidCommand)
}

func retryDialOnly(err error) bool {
	var de *DialError
	return errors.As(err, &de)
}

func (r *Retry) do(ctx context.Context, op string, retryable func(error) bool, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt-1) * r.policy.Backoff
			slog.Debug("retrying device call", "op", op, "attempt", attempt, "wait", wait, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err = r.attempt(ctx, fn)
		if err == nil || ctx.Err() != nil || !retryable(err) {
			return err
		}
	}
	return err
}

func (r *Retry) attempt(ctx context.Context, fn func(context.Context) error) error {
	if r.policy.Timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
	defer cancel()
	return fn(ctx)
}
