package github

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	gh "github.com/google/go-github/v66/github"
)

const (
	// maxRetries bounds every rate-limit retry loop. No retry path in this
	// package is unbounded.
	maxRetries = 3

	backoffBase    = time.Second
	backoffJitter  = time.Second
	backoffCeiling = 60 * time.Second
)

// IsRateLimitError reports whether err is a primary (quota-exhausted) rate
// limit: a 403 carrying a zero remaining-quota header. go-github constructs
// [gh.RateLimitError] for exactly that case, and the GraphQL transport in
// this package does the same. Any other error shape reports false.
func IsRateLimitError(err error) bool {
	var rle *gh.RateLimitError
	return errors.As(err, &rle)
}

// IsSecondaryRateLimitError reports whether err is a secondary (abuse
// detection) rate limit: a 403 carrying a retry-after header. go-github only
// constructs [gh.AbuseRateLimitError] when the response body links the
// secondary-rate-limit docs, so a bare 403 with a Retry-After header is
// classified here from the header alone, the same way the GraphQL transport
// does.
func IsSecondaryRateLimitError(err error) bool {
	var arle *gh.AbuseRateLimitError
	if errors.As(err, &arle) {
		return true
	}
	var ger *gh.ErrorResponse
	return errors.As(err, &ger) && ger.Response != nil &&
		ger.Response.StatusCode == http.StatusForbidden &&
		ger.Response.Header.Get("Retry-After") != ""
}

func isAnyRateLimit(err error) bool {
	return IsRateLimitError(err) || IsSecondaryRateLimitError(err)
}

// RetryDelay computes the wait before retry number attempt (0-based).
// If reset is known and in the future, the delay is the time until reset;
// otherwise exponential backoff with up to one second of random jitter.
// Either way the delay never exceeds 60 seconds.
func RetryDelay(attempt int, reset time.Time) time.Duration {
	if !reset.IsZero() {
		if until := time.Until(reset); until > 0 {
			return min(until, backoffCeiling)
		}
	}

	delay := backoffBase * (1 << attempt)
	delay += time.Duration(rand.Int63n(int64(backoffJitter)))
	return min(delay, backoffCeiling)
}

// RetryAfter extracts the secondary rate limit's recommended delay from err.
// Zero or negative values report ok=false, forcing callers to fall back to
// computed backoff.
func RetryAfter(err error) (time.Duration, bool) {
	var arle *gh.AbuseRateLimitError
	if errors.As(err, &arle) && arle.RetryAfter != nil && *arle.RetryAfter > 0 {
		return *arle.RetryAfter, true
	}
	var ger *gh.ErrorResponse
	if errors.As(err, &ger) && ger.Response != nil {
		if secs, perr := strconv.Atoi(ger.Response.Header.Get("Retry-After")); perr == nil && secs > 0 {
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}

// resetTime extracts the primary rate limit's reset timestamp, if present.
func resetTime(err error) time.Time {
	var rle *gh.RateLimitError
	if errors.As(err, &rle) {
		return rle.Rate.Reset.Time
	}
	return time.Time{}
}

// retryOnRateLimit runs fn up to maxRetries times, sleeping between attempts
// per the backoff policy. Only rate-limit errors are retried; anything else
// propagates immediately. Returns the last rate-limit error if all attempts
// fail, so callers can flag their results partial.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := range maxRetries {
		err := fn()
		if err == nil {
			return nil
		}
		if !isAnyRateLimit(err) {
			return err
		}
		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay, ok := RetryAfter(err)
		if !ok {
			delay = RetryDelay(attempt, resetTime(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
