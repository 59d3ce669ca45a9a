package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", config.MaxRetries)
	}

	if config.BaseDelay != time.Second {
		t.Errorf("Expected BaseDelay=1s, got %v", config.BaseDelay)
	}

	if config.MaxDelay != 30*time.Second {
		t.Errorf("Expected MaxDelay=30s, got %v", config.MaxDelay)
	}

	if config.Multiplier != 2.0 {
		t.Errorf("Expected Multiplier=2.0, got %f", config.Multiplier)
	}

	if !config.Jitter {
		t.Error("Expected Jitter=true")
	}
}

func TestReasoningConfig(t *testing.T) {
	config := ReasoningConfig()

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", config.MaxRetries)
	}

	if config.BaseDelay != 2*time.Second {
		t.Errorf("Expected BaseDelay=2s, got %v", config.BaseDelay)
	}

	if config.MaxDelay != 60*time.Second {
		t.Errorf("Expected MaxDelay=60s, got %v", config.MaxDelay)
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	config := Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	err := Do(context.Background(), config, func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	config := Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	err := Do(context.Background(), config, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	config := Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	wantErr := errors.New("invalid credentials")
	err := Do(context.Background(), config, func() error {
		calls++
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Errorf("Expected %v, got %v", wantErr, err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestDo_PermanentStopsRetries(t *testing.T) {
	config := Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	inner := errors.New("timeout while parsing") // would otherwise be retryable
	err := Do(context.Background(), config, func() error {
		calls++
		return Permanent(inner)
	})

	if !errors.Is(err, inner) {
		t.Errorf("Expected unwrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call for permanent error, got %d", calls)
	}
}

func TestDo_TransientRetriedRegardlessOfMessage(t *testing.T) {
	config := Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	err := Do(context.Background(), config, func() error {
		calls++
		if calls < 2 {
			// Not in the IsRetryable list; the wrapper alone makes it retry.
			return Transient(errors.New("unexpected EOF"))
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected success after retry, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestDo_TransientExhaustionReturnsInnerError(t *testing.T) {
	config := Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	inner := errors.New("unexpected EOF")
	err := Do(context.Background(), config, func() error {
		calls++
		return Transient(inner)
	})

	if !errors.Is(err, inner) {
		t.Errorf("Expected inner error after exhaustion, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls (1 + 1 retry), got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	config := Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	err := Do(context.Background(), config, func() error {
		calls++
		return errors.New("503 service unavailable")
	})

	if err == nil {
		t.Error("Expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls (1 + 2 retries), got %d", calls)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	config := Config{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, config, func() error {
		return errors.New("connection reset")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("invalid api key"), false},
		{errors.New("schema validation failed"), false},
		{context.Canceled, false},
	}

	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.retryable {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
}

func TestCalculateDelay_NoJitter(t *testing.T) {
	config := Config{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0, Jitter: false}

	if d := calculateDelay(config, 0); d != time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", d)
	}
	if d := calculateDelay(config, 1); d != 2*time.Second {
		t.Errorf("attempt 1: expected 2s, got %v", d)
	}
	if d := calculateDelay(config, 10); d != 10*time.Second {
		t.Errorf("attempt 10: expected cap at 10s, got %v", d)
	}
}
