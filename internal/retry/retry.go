// Package retry wraps fallible remote calls with bounded retries and
// exponential backoff. Failures are classified as retryable or fatal;
// fatal failures surface immediately without consuming the budget.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

// nonRetryableTokens abort a call immediately when found in the error
// text. These indicate credential or permission problems that more
// attempts cannot fix.
var nonRetryableTokens = []string{
	"authentication",
	"unauthorized",
	"forbidden",
	"invalid grant",
	"token",
	"permission",
}

// statusCoder is implemented by errors that carry an HTTP-like status.
type statusCoder interface {
	HTTPStatus() int
}

// Executor retries an operation up to MaxRetries additional times,
// sleeping BaseDelay * 2^(attempt-1) before retry attempt n. A zero
// MaxRetries executes the operation exactly once.
type Executor struct {
	MaxRetries int
	BaseDelay  time.Duration

	logger *slog.Logger

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Executor with the given budget and logger.
func New(maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Do runs fn, retrying retryable failures until the budget is spent.
// The label identifies the operation in log output.
func (e *Executor) Do(ctx context.Context, label string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := e.BaseDelay * (1 << (attempt - 1))
			e.logger.Warn("retrying operation",
				"op", label,
				"attempt", attempt,
				"max_retries", e.MaxRetries,
				"wait", wait)
			if err := e.sleep(ctx, wait); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			e.logger.Error("non-retryable failure",
				"op", label,
				"error", truncate(err.Error(), 100))
			return err
		}

		if attempt < e.MaxRetries {
			e.logger.Warn("attempt failed",
				"op", label,
				"attempt", attempt+1,
				"error", truncate(err.Error(), 100))
		}
	}

	e.logger.Error("all attempts failed",
		"op", label,
		"attempts", e.MaxRetries+1,
		"error", truncate(lastErr.Error(), 100))
	return lastErr
}

// DoValue runs fn through the executor and returns its result.
func DoValue[T any](e *Executor, ctx context.Context, label string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, label, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Retryable reports whether err is worth another attempt. Credential
// and permission failures, and any HTTP 4xx status, are fatal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, token := range nonRetryableTokens {
		if strings.Contains(msg, token) {
			return false
		}
	}

	if status, ok := httpStatus(err); ok && status >= 400 && status < 500 {
		return false
	}

	return true
}

// httpStatus extracts an HTTP status code from err when one is
// attached, either by the Google API client or by anything exposing
// HTTPStatus().
func httpStatus(err error) (int, bool) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}

// sleepContext blocks for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
