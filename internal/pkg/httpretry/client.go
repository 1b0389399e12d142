// Package httpretry retries outbound conversion API calls on throttling and
// gateway failures with jittered exponential backoff.
package httpretry

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/creatorhub/internal/pkg/logger"
)

// HTTPDoer executes one request. *http.Client and *RetryClient satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries 429 and 5xx gateway responses and transport errors.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Option customizes a RetryClient.
type Option func(*RetryClient)

// WithBackoff overrides the base and maximum backoff delays.
func WithBackoff(base, max time.Duration) Option {
	return func(rc *RetryClient) {
		rc.baseDelay = base
		rc.maxDelay = max
	}
}

// NewRetryClient wraps client, or a 30s http.Client when nil. maxRetries
// counts attempts after the first and defaults to 3.
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rc := &RetryClient{client: client, maxRetries: maxRetries, baseDelay: time.Second, maxDelay: 30 * time.Second}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Do sends req until it gets a non-retryable answer or runs out of
// attempts. The last retryable response is returned unread so callers can
// report its status. A Retry-After header overrides the computed backoff.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var (
		lastErr error
		wait    time.Duration
	)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := rewind(req); err != nil {
				return nil, err
			}
			logger.Debug("retrying conversion request", "host", req.URL.Host, "attempt", attempt, "delay", wait.String())
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil, firstNonNil(lastErr, ctx.Err())
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, firstNonNil(lastErr, err)
		}

		resp, err := rc.client.Do(req)
		last := attempt == rc.maxRetries
		switch {
		case err != nil:
			if ctx.Err() != nil || last {
				return nil, err
			}
			lastErr = err
			wait = rc.backoff(attempt + 1)
		case !retryable(resp.StatusCode) || last:
			return resp, nil
		default:
			wait = rc.backoff(attempt + 1)
			if ra, ok := retryAfter(resp); ok {
				wait = min(ra, rc.maxDelay)
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("httpretry: %s returned %d", req.URL.Host, resp.StatusCode)
		}
	}
}

func rewind(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: reset body: %w", err)
	}
	req.Body = body
	return nil
}

// backoff is full jitter over base*2^(n-1), capped at maxDelay and floored
// at a tenth of base.
func (rc *RetryClient) backoff(n int) time.Duration {
	ceiling := rc.baseDelay << (n - 1)
	if ceiling <= 0 || ceiling > rc.maxDelay {
		ceiling = rc.maxDelay
	}
	d := time.Duration(rand.Int63n(int64(ceiling) + 1))
	return max(d, rc.baseDelay/10)
}

// retryAfter reads a delta-seconds Retry-After header.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
