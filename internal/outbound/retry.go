// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// RetryPolicy bounds the exponential backoff applied to transient failures.
// MaxAttempts counts every attempt, including the first.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	Growth      float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		MinBackoff:  time.Second,
		MaxBackoff:  10 * time.Second,
		Growth:      2,
	}
}

// Validate rejects policies that cannot be applied.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.MinBackoff < 0 {
		return fmt.Errorf("retry min_backoff must not be negative")
	}
	if p.MaxBackoff < p.MinBackoff {
		return fmt.Errorf("retry max_backoff (%s) is below min_backoff (%s)", p.MaxBackoff, p.MinBackoff)
	}
	if p.Growth < 1 {
		return fmt.Errorf("retry growth must be >= 1, got %g", p.Growth)
	}
	return nil
}

// Backoff returns the wait before retry n (1-based): MinBackoff * Growth^(n-1)
// capped at MaxBackoff. The sequence never decreases.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.MinBackoff) * math.Pow(p.Growth, float64(n-1))
	if d > float64(p.MaxBackoff) || math.IsInf(d, 0) || math.IsNaN(d) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// HTTPError is a non-2xx response from an outbound call.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsTransient reports whether err is worth retrying. Only rate limiting
// (HTTP 429) qualifies, whether it came from the connector or from the token
// endpoint.
func IsTransient(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) && tokenErr.Response != nil {
		return tokenErr.Response.StatusCode == http.StatusTooManyRequests
	}
	return false
}

type waitFunc func(ctx context.Context, d time.Duration) error

// Retry runs op under policy p. Transient failures are retried with
// backoff; any other failure, or exhausting the attempts, returns the last
// error. Cancellation of ctx aborts both the attempt and any pending wait.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	return retry(ctx, p, op, sleepContext)
}

func retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error, wait waitFunc) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var prev time.Duration
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt >= attempts {
			return err
		}

		delay := p.Backoff(attempt)
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > delay {
			delay = min(httpErr.RetryAfter, p.MaxBackoff)
		}
		delay = max(delay, prev)
		prev = delay

		slog.Warn("outbound call rate limited, backing off",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", delay,
			"error", err,
		)

		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
