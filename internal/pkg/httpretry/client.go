// Package httpretry retries idempotent HTTP calls to external APIs with
// jittered exponential backoff. The Backoff type is also used directly by
// the SDK-based gateways.
package httpretry

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
)

// DefaultMaxRetries is the retry budget when none is configured.
const DefaultMaxRetries = 3

// HTTPDoer executes a request. *http.Client and *RetryClient satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer. It retries transport errors and the
// statuses reported by IsRetryableStatus, and never retries once the
// request context is done.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	backoff    Backoff
}

// NewRetryClient wraps client, or a 30s http.Client when nil. maxRetries
// <= 0 uses DefaultMaxRetries.
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RetryClient{client: client, maxRetries: maxRetries, backoff: DefaultBackoff()}
}

// WithBackoff replaces the backoff policy.
func (rc *RetryClient) WithBackoff(b Backoff) *RetryClient {
	rc.backoff = b
	return rc
}

// MaxRetries returns the default retry budget.
func (rc *RetryClient) MaxRetries() int { return rc.maxRetries }

// Do executes req with the default retry budget.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	return rc.DoWithRetries(req, rc.maxRetries)
}

// DoWithRetries makes at most maxRetries+1 attempts. When every attempt
// gets a retryable status the last response is returned unread so the
// caller can inspect it; when every attempt fails in transport the last
// error is returned.
func (rc *RetryClient) DoWithRetries(req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	ctx := req.Context()
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, firstNonNil(lastErr, err)
		}

		resp, err := rc.client.Do(req)
		final := attempt == maxRetries
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
		case !IsRetryableStatus(resp.StatusCode) || final:
			return resp, nil
		default:
			lastErr = fmt.Errorf("httpretry: retryable status %d", resp.StatusCode)
		}
		if final {
			return nil, lastErr
		}

		wait := rc.backoff.Delay(attempt + 1)
		if resp != nil {
			if hinted, ok := retryAfter(resp, rc.backoff.Max); ok {
				wait = hinted
			}
			drain(resp)
		}
		logger.Debug("http_retry",
			"attempt", attempt+1, "max_retries", maxRetries,
			"method", req.Method, "host", req.URL.Host, "path", req.URL.Path,
			"wait_ms", wait.Milliseconds(), "cause", lastErr)

		if err := Sleep(ctx, wait); err != nil {
			return nil, firstNonNil(lastErr, err)
		}
		if err := rewind(req); err != nil {
			return nil, err
		}
	}
}

// IsRetryableStatus reports whether status is a transient server-side
// condition: 429, 500, 502, 503 or 504.
func IsRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter reads a Retry-After header given in seconds, capped at max
// when max is set.
func retryAfter(resp *http.Response, max time.Duration) (time.Duration, bool) {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if max > 0 && d > max {
		d = max
	}
	return d, true
}

// rewind resets a consumed body before the next attempt.
func rewind(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: reset request body: %w", err)
	}
	req.Body = body
	return nil
}

// drain lets the transport reuse the connection.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return errors.New("httpretry: no attempt made")
}
