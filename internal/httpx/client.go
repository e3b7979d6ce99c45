// Package httpx is the shared HTTP layer for provider clients. It retries
// transient failures, honors Retry-After on rate limits, and maps status
// codes onto the CLI error taxonomy.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/version"
)

const (
	// maxRetryAfter bounds how long a Retry-After header can stall a retry.
	maxRetryAfter = 5 * time.Second
	// maxSnippet bounds how much of an error body is kept as diagnostics.
	maxSnippet = 200
)

type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
}

func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  version.UserAgent(),
	}
}

// DoJSON sends req and decodes the JSON response into out. Timeouts, rate
// limits, and 5xx responses are retried with exponential backoff up to the
// configured attempt budget; auth and client errors fail immediately.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var (
		wait       time.Duration
		lastHeader http.Header
		lastErr    error
	)
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if wait <= 0 {
				wait = backoff(attempt)
			}
			select {
			case <-ctx.Done():
				return lastHeader, clierr.Wrap(clierr.CodeUnavailable, "request cancelled", ctx.Err())
			case <-time.After(wait):
			}
			wait = 0
		}

		resp, body, err := c.send(ctx, req)
		if resp != nil {
			lastHeader = resp.Header
		}
		if err != nil {
			if cErr, ok := clierr.As(err); ok && cErr.Code == clierr.CodeInternal {
				return lastHeader, err
			}
			lastErr = err
			continue
		}

		retryable, failure := classifyStatus(resp.StatusCode, body)
		if failure != nil {
			if !retryable {
				return resp.Header, failure
			}
			lastErr = failure
			wait = retryAfter(resp.Header)
			continue
		}

		return resp.Header, decodeJSON(body, out)
	}

	if lastErr != nil {
		return lastHeader, lastErr
	}
	return lastHeader, clierr.New(clierr.CodeUnavailable, "request failed")
}

// DoBodyJSON builds a request around a JSON payload and dispatches it via
// DoJSON. The payload is captured in GetBody so retries resend it intact.
func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

// send issues one attempt and drains the body so the connection can be
// reused across retries.
func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, []byte, error) {
	attemptReq := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, nil, clierr.Wrap(clierr.CodeInternal, "clone request body", err)
		}
		attemptReq.Body = body
	}

	resp, err := c.httpClient.Do(attemptReq)
	if err != nil {
		return nil, nil, mapNetError(err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return resp, nil, clierr.Wrap(clierr.CodeUnavailable, "read provider response", err)
	}
	return resp, body, nil
}

// classifyStatus maps a response status onto the error taxonomy. The body
// snippet rides along as the cause so provider diagnostics reach the user.
func classifyStatus(status int, body []byte) (retryable bool, err error) {
	switch {
	case status == http.StatusTooManyRequests:
		return true, clierr.Wrap(clierr.CodeRateLimited, "provider rate limited request", bodyCause(body))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return false, clierr.Wrap(clierr.CodeAuth, "provider authentication failed", bodyCause(body))
	case status >= http.StatusInternalServerError:
		return true, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("provider unavailable (status %d)", status), bodyCause(body))
	case status < 200 || status >= 300:
		return false, clierr.Wrap(clierr.CodeUnsupported, fmt.Sprintf("provider returned unexpected status %d", status), bodyCause(body))
	}
	return false, nil
}

func decodeJSON(body []byte, out any) error {
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return clierr.New(clierr.CodeUnavailable, "provider returned empty response")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "decode provider JSON", err)
	}
	return nil
}

func bodyCause(body []byte) error {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return nil
	}
	if len(s) > maxSnippet {
		s = s[:maxSnippet] + "..."
	}
	return errors.New(s)
}

// retryAfter reads a Retry-After header in either seconds or HTTP-date
// form, clamped to maxRetryAfter. Zero means fall back to backoff.
func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return clampRetryAfter(time.Duration(secs) * time.Second)
	}
	if t, err := http.ParseTime(v); err == nil {
		return clampRetryAfter(time.Until(t))
	}
	return 0
}

func clampRetryAfter(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func mapNetError(err error) error {
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "provider timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "provider request failed", err)
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}
