package github

import (
	"errors"
	"net/http"
	"testing"
	"time"

	gh "github.com/google/go-github/v66/github"
)

// forbiddenResponse builds the unclassified error go-github returns for a
// 403 whose body lacks the secondary-rate-limit documentation link.
func forbiddenResponse(retryAfter string) *gh.ErrorResponse {
	header := http.Header{}
	if retryAfter != "" {
		header.Set("Retry-After", retryAfter)
	}
	return &gh.ErrorResponse{Response: &http.Response{StatusCode: http.StatusForbidden, Header: header}}
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		primary   bool
		secondary bool
	}{
		{"primary", &gh.RateLimitError{}, true, false},
		{"secondary", &gh.AbuseRateLimitError{}, false, true},
		{"wrapped primary", errors.Join(errors.New("context"), &gh.RateLimitError{}), true, false},
		{"unclassified 403 with retry-after header", forbiddenResponse("30"), false, true},
		{"unclassified 403 without retry-after header", forbiddenResponse(""), false, false},
		{"plain error", errors.New("boom"), false, false},
		{"nil", nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimitError(tt.err); got != tt.primary {
				t.Errorf("IsRateLimitError = %v, want %v", got, tt.primary)
			}
			if got := IsSecondaryRateLimitError(tt.err); got != tt.secondary {
				t.Errorf("IsSecondaryRateLimitError = %v, want %v", got, tt.secondary)
			}
		})
	}
}

func TestRetryDelay(t *testing.T) {
	t.Run("known reset waits until reset", func(t *testing.T) {
		reset := time.Now().Add(5 * time.Second)
		delay := RetryDelay(0, reset)
		if delay <= 0 || delay > 5*time.Second {
			t.Errorf("delay = %v, want within (0, 5s]", delay)
		}
	})

	t.Run("distant reset is capped", func(t *testing.T) {
		reset := time.Now().Add(10 * time.Minute)
		if delay := RetryDelay(0, reset); delay != backoffCeiling {
			t.Errorf("delay = %v, want ceiling %v", delay, backoffCeiling)
		}
	})

	t.Run("past reset falls back to backoff", func(t *testing.T) {
		reset := time.Now().Add(-time.Minute)
		delay := RetryDelay(1, reset)
		if delay < 2*time.Second || delay > 3*time.Second {
			t.Errorf("delay = %v, want base*2 plus up to 1s jitter", delay)
		}
	})

	t.Run("backoff doubles per attempt", func(t *testing.T) {
		for attempt, minWant := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
			delay := RetryDelay(attempt, time.Time{})
			if delay < minWant || delay > minWant+backoffJitter {
				t.Errorf("attempt %d: delay = %v, want [%v, %v]", attempt, delay, minWant, minWant+backoffJitter)
			}
		}
	})
}

func TestRetryAfter(t *testing.T) {
	after := 30 * time.Second
	if d, ok := RetryAfter(&gh.AbuseRateLimitError{RetryAfter: &after}); !ok || d != after {
		t.Errorf("RetryAfter = %v, %v, want %v, true", d, ok, after)
	}

	zero := time.Duration(0)
	if _, ok := RetryAfter(&gh.AbuseRateLimitError{RetryAfter: &zero}); ok {
		t.Error("RetryAfter with zero value reported ok")
	}
	if _, ok := RetryAfter(&gh.AbuseRateLimitError{}); ok {
		t.Error("RetryAfter with nil value reported ok")
	}
	if _, ok := RetryAfter(errors.New("boom")); ok {
		t.Error("RetryAfter on plain error reported ok")
	}

	if d, ok := RetryAfter(forbiddenResponse("30")); !ok || d != 30*time.Second {
		t.Errorf("RetryAfter from header = %v, %v, want 30s, true", d, ok)
	}
	if _, ok := RetryAfter(forbiddenResponse("soon")); ok {
		t.Error("RetryAfter with unparseable header reported ok")
	}
}

func TestRetryOnRateLimitPropagatesHardErrors(t *testing.T) {
	calls := 0
	hard := errors.New("boom")
	err := retryOnRateLimit(t.Context(), func() error {
		calls++
		return hard
	})
	if !errors.Is(err, hard) {
		t.Errorf("err = %v, want %v", err, hard)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for hard errors)", calls)
	}
}

func TestRetryOnRateLimitRetriesAndSucceeds(t *testing.T) {
	after := time.Millisecond
	calls := 0
	err := retryOnRateLimit(t.Context(), func() error {
		calls++
		if calls < 2 {
			return &gh.AbuseRateLimitError{RetryAfter: &after}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryOnRateLimitGivesUpAfterMaxRetries(t *testing.T) {
	after := time.Millisecond
	calls := 0
	err := retryOnRateLimit(t.Context(), func() error {
		calls++
		return &gh.AbuseRateLimitError{RetryAfter: &after}
	})
	if !IsSecondaryRateLimitError(err) {
		t.Errorf("err = %v, want secondary rate limit error", err)
	}
	if calls != maxRetries {
		t.Errorf("calls = %d, want %d", calls, maxRetries)
	}
}
