package downloader

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

type retryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Metadata lookups sit in front of the request path, so retries stay short.
var defaultRetryConfig = retryConfig{
	MaxRetries:   2,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

// retryTransport retries transient failures with exponential backoff and
// jitter, honouring Retry-After when the server sends one.
type retryTransport struct {
	base   http.RoundTripper
	config retryConfig
}

func newRetryTransport(base http.RoundTripper, config retryConfig) *retryTransport {
	return &retryTransport{base: base, config: config}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= t.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := t.backoffDelay(attempt)
			if lastResp != nil {
				if hinted, ok := retryAfter(lastResp, t.config.MaxDelay); ok {
					delay = hinted
				}
			}
			if err := sleepWithContext(req.Context(), delay); err != nil {
				if lastResp != nil {
					lastResp.Body.Close()
				}
				return nil, err
			}
		}

		attemptReq := req
		if attempt > 0 {
			cloned, err := cloneRequest(req)
			if err != nil {
				if lastResp != nil {
					return lastResp, nil
				}
				return nil, lastErr
			}
			attemptReq = cloned
		}

		resp, err := t.base.RoundTrip(attemptReq)
		if err != nil {
			if !isRetryableError(err) {
				if lastResp != nil {
					lastResp.Body.Close()
				}
				return nil, err
			}
			lastErr = err
			continue
		}
		if !isRetryableStatus(resp.StatusCode) {
			if lastResp != nil {
				lastResp.Body.Close()
			}
			return resp, nil
		}
		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp = resp
		lastErr = nil
	}

	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

// backoffDelay doubles from InitialDelay per attempt, capped at MaxDelay,
// with ±25% jitter.
func (t *retryTransport) backoffDelay(attempt int) time.Duration {
	base := float64(t.config.InitialDelay) * math.Pow(2, float64(attempt-1))
	if base > float64(t.config.MaxDelay) {
		base = float64(t.config.MaxDelay)
	}
	jitter := base * 0.25 * (rand.Float64()*2 - 1) //nolint:gosec
	return time.Duration(base + jitter)
}

// retryAfter parses a delay-seconds Retry-After header, capped at limit.
func retryAfter(resp *http.Response, limit time.Duration) (time.Duration, bool) {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if d > limit {
		d = limit
	}
	return d, true
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, errors.New("request body cannot be replayed")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
