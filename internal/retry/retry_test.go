package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func testExecutor(maxRetries int, baseDelay time.Duration) (*Executor, *[]time.Duration) {
	var slept []time.Duration
	e := New(maxRetries, baseDelay, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return e, &slept
}

func TestDoStopsAfterMaxRetriesPlusOneAttempts(t *testing.T) {
	e, slept := testExecutor(3, 2*time.Second)

	attempts := 0
	err := e.Do(context.Background(), "flaky", func(context.Context) error {
		attempts++
		return errors.New("connection reset")
	})
	if err == nil {
		t.Fatalf("expected final error after budget exhausted")
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts with max_retries=3, got %d", attempts)
	}

	var total time.Duration
	for _, d := range *slept {
		total += d
	}
	if want := 7 * 2 * time.Second; total != want {
		t.Fatalf("expected total backoff %v (2s+4s+8s), got %v", want, total)
	}
}

func TestDoReturnsNilOnEventualSuccess(t *testing.T) {
	e, slept := testExecutor(3, time.Second)

	attempts := 0
	err := e.Do(context.Background(), "flaky", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary outage")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(*slept))
	}
}

func TestDoAbortsImmediatelyOnAuthFailure(t *testing.T) {
	e, slept := testExecutor(5, time.Second)

	attempts := 0
	err := e.Do(context.Background(), "list", func(context.Context) error {
		attempts++
		return errors.New("request had Unauthorized credentials")
	})
	if err == nil {
		t.Fatalf("expected the auth error to surface")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no backoff sleeps, got %d", len(*slept))
	}
}

func TestDoAbortsOnClientStatusCode(t *testing.T) {
	e, _ := testExecutor(3, time.Second)

	attempts := 0
	err := e.Do(context.Background(), "append", func(context.Context) error {
		attempts++
		return fmt.Errorf("appending rows: %w", &googleapi.Error{Code: 404, Message: "sheet not found"})
	})
	if err == nil {
		t.Fatalf("expected the 404 to surface")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a 4xx error, got %d", attempts)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errors.New("dial tcp: connection refused"), true},
		{"server error", &googleapi.Error{Code: 503}, true},
		{"rate limited", &googleapi.Error{Code: 429}, false},
		{"forbidden text", errors.New("access Forbidden for this resource"), false},
		{"invalid grant", errors.New("oauth2: invalid grant"), false},
		{"token", errors.New("Token has been expired or revoked"), false},
		{"permission", errors.New("the caller does not have Permission"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("%s: Retryable=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDoValueReturnsResult(t *testing.T) {
	e, _ := testExecutor(2, time.Second)

	attempts := 0
	got, err := DoValue(e, context.Background(), "fetch", func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestDoHonorsContextCancellationDuringBackoff(t *testing.T) {
	e := New(3, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Do(ctx, "slow", func(context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
