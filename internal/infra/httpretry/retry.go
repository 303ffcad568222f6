// Package httpretry wraps outbound calls with a bounded retry on a
// caller-supplied predicate. Failure responses are rebuilt from the already
// consumed body so callers can treat them like network-delivered ones.
package httpretry

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const failureBodyLimit = 1 << 20 // 1 MiB

// Policy decides whether a failed attempt is worth retrying.
type Policy func(status int, body []byte) bool

// Caller executes requests with linear backoff between attempts.
type Caller struct {
	client  *http.Client
	backoff time.Duration
	sleep   func(time.Duration)
	logger  *slog.Logger
}

// New constructs a Caller. backoff is the linear step: attempt n sleeps
// n*backoff before the next try.
func New(client *http.Client, backoff time.Duration, logger *slog.Logger) *Caller {
	if client == nil {
		client = http.DefaultClient
	}
	return &Caller{
		client:  client,
		backoff: backoff,
		sleep:   time.Sleep,
		logger:  logger.With("component", "httpretry"),
	}
}

// Do performs the request up to maxAttempts times. A 2xx response is
// returned as-is. On failure the body is read exactly once; if the policy
// declines or the budget is spent, a synthetic response carrying the
// original status, headers, and body is returned with a nil error.
func (c *Caller) Do(req *http.Request, retryable Policy, maxAttempts int) (*http.Response, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		attemptReq := req
		if attempt > 1 {
			attemptReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				attemptReq.Body = body
			}
		}

		resp, err := c.client.Do(attemptReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 300 {
			return resp, nil
		}

		// Bodies are single-read streams: capture before deciding anything.
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, failureBodyLimit))
		resp.Body.Close()
		if readErr != nil {
			body = nil
		}

		if attempt < maxAttempts && retryable(resp.StatusCode, body) {
			delay := time.Duration(attempt) * c.backoff
			c.logger.Warn("transient upstream failure, retrying",
				"url", req.URL.String(), "status", resp.StatusCode, "attempt", attempt, "delay_ms", delay.Milliseconds())
			if delay > 0 {
				c.sleep(delay)
			}
			continue
		}

		return &http.Response{
			Status:     resp.Status,
			StatusCode: resp.StatusCode,
			Proto:      resp.Proto,
			ProtoMajor: resp.ProtoMajor,
			ProtoMinor: resp.ProtoMinor,
			Header:     resp.Header.Clone(),
			Body:       io.NopCloser(bytes.NewReader(body)),
			Request:    req,
		}, nil
	}
}

// Transient is the default policy: rate limiting, upstream faults, and the
// provider's region-restriction 403 are retryable. Other 4xx are terminal.
func Transient(status int, body []byte) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	case http.StatusForbidden:
		return strings.Contains(string(body), "unsupported_country_region_territory")
	default:
		return false
	}
}
