// Package httputil provides the HTTP plumbing shared by the scraper and the
// policy-engine's upstream fetch: a timeout-bounded JSON client and a small
// retry helper for transient failures.
//
// Failure classification lives in the error values themselves: Get marks
// errors that may clear on their own (network faults, HTTP 5xx) as transient
// via pkg/errors, and Retry re-runs an operation only while it keeps failing
// that way. Permanent upstream answers, a 404 for an unknown stream say,
// fail fast.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/corestream/cincinnati/pkg/errors"
)

// DefaultTimeout bounds upstream requests. It is deliberately generous to
// absorb slow CDN responses; configuration can lower it.
const DefaultTimeout = 30 * time.Minute

// Client fetches JSON documents from upstream endpoints. It wraps a single
// http.Client, so connection pooling and keepalive are shared across
// requests. Safe for concurrent use.
type Client struct {
	hc *http.Client
}

// NewClient creates a client with the given request timeout.
// A zero or negative timeout falls back to DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		hc: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				IdleConnTimeout: 10 * time.Second,
			},
		},
	}
}

// Get fetches url and returns the response body. Network failures and
// HTTP 5xx are marked transient; any other non-2xx status is a permanent
// upstream error. Both carry the UPSTREAM_ERROR code.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpstream, err, "building request for %s", url)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrCodeUpstream, err, "fetching %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, errors.NewTransient(errors.ErrCodeUpstream, "fetching %s: %s", url, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New(errors.ErrCodeUpstream, "fetching %s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrCodeUpstream, err, "reading %s", url)
	}
	return body, nil
}

// Retry re-runs fn while it fails with a transient error, up to attempts
// executions in total. Between executions it waits for backoff, doubling it
// each time; if ctx is cancelled during that pause, the last failure is
// abandoned and the context error returned. The first permanent failure is
// returned immediately.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= attempts || !errors.IsTransient(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}
