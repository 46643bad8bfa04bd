// Package retry wraps fallible operations with bounded retries and capped
// exponential backoff. Every outbound call to the document store and to the
// model backends goes through an Executor; no other retry loops exist in the
// daemon.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Executor retries operations with exponential backoff.
type Executor struct {
	attempts  uint
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *slog.Logger
}

// Config configures a new Executor.
type Config struct {
	// MaxAttempts is the total number of attempts (default 3).
	MaxAttempts int

	// BaseDelay is the delay before the first retry (default 1s).
	BaseDelay time.Duration

	// MaxDelay caps the backoff growth (default 30s).
	MaxDelay time.Duration

	Logger *slog.Logger
}

// New creates an Executor.
func New(cfg Config) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		attempts:  uint(cfg.MaxAttempts),
		baseDelay: cfg.BaseDelay,
		maxDelay:  cfg.MaxDelay,
		logger:    logger,
	}
}

// Do runs op until it succeeds, returns a permanent error, or the attempt
// budget is exhausted. The name is used in logs and error messages.
func (e *Executor) Do(ctx context.Context, name string, op func() error) error {
	_, err := DoWithData(ctx, e, name, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// DoWithData is the value-returning form of Do.
func DoWithData[T any](ctx context.Context, e *Executor, name string, op func() (T, error)) (T, error) {
	result, err := retrygo.DoWithData(
		op,
		retrygo.Context(ctx),
		retrygo.Attempts(e.attempts),
		retrygo.Delay(e.baseDelay),
		retrygo.MaxDelay(e.maxDelay),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.LastErrorOnly(true),
		retrygo.OnRetry(func(n uint, err error) {
			e.logger.Warn("operation failed; retrying",
				"op", name,
				"attempt", n+1,
				"max_attempts", e.attempts,
				"delay", BackoffDelay(n+1, e.baseDelay, e.maxDelay).String(),
				"error", err,
			)
		}),
	)
	if err != nil {
		if !IsPermanent(err) && ctx.Err() == nil {
			err = fmt.Errorf("%s failed after %d attempts: %w", name, e.attempts, err)
		}
		return result, err
	}
	return result, nil
}

// BackoffDelay returns the sleep before retry number n (1-based):
// min(base * 2^(n-1), max). Exported so the schedule is testable without
// sleeping.
func BackoffDelay(n uint, base, max time.Duration) time.Duration {
	if n == 0 {
		n = 1
	}
	delay := base
	for i := uint(1); i < n; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Permanent marks err as non-retryable: it propagates immediately without
// consuming retry budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return retrygo.Unrecoverable(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	return err != nil && !retrygo.IsRecoverable(err)
}

// ClassifyHTTPStatus converts an HTTP error status into the retry taxonomy:
// rate limits, timeouts and server errors are retryable, every other client
// error is permanent.
func ClassifyHTTPStatus(status int, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return err
	case status >= 500:
		return err
	case status >= 400:
		return Permanent(err)
	default:
		return err
	}
}

// StatusError is an HTTP response with a non-success status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// AsStatusError unwraps a StatusError if err carries one.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
