package downloader

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var fastRetry = retryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

func TestRetryTransportStatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantCode  int
	}{
		{name: "success first try", statuses: []int{200}, wantCalls: 1, wantCode: 200},
		{name: "recovers after 5xx", statuses: []int{502, 502, 200}, wantCalls: 3, wantCode: 200},
		{name: "recovers after 429", statuses: []int{429, 200}, wantCalls: 2, wantCode: 200},
		{name: "no retry on 403", statuses: []int{403}, wantCalls: 1, wantCode: 403},
		{name: "no retry on 404", statuses: []int{404}, wantCalls: 1, wantCode: 404},
		{name: "exhausted", statuses: []int{503, 503, 503, 503}, wantCalls: 4, wantCode: 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			transport := newRetryTransport(roundTripFunc(func(req *http.Request) (*http.Response, error) {
				n := atomic.AddInt32(&calls, 1)
				return &http.Response{StatusCode: tt.statuses[n-1], Body: http.NoBody, Header: http.Header{}}, nil
			}), fastRetry)

			req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
			resp, err := transport.RoundTrip(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, resp.StatusCode)
			}
			if c := atomic.LoadInt32(&calls); c != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, c)
			}
		})
	}
}

func TestRetryTransportContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	transport := newRetryTransport(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return &http.Response{StatusCode: 502, Body: http.NoBody, Header: http.Header{}}, nil
	}), fastRetry)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://example.com", nil)
	if _, err := transport.RoundTrip(req); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if c := atomic.LoadInt32(&calls); c != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", c)
	}
}

func TestRetryTransportNetworkErrors(t *testing.T) {
	var calls int32
	transport := newRetryTransport(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, &net.OpError{Op: "dial", Err: &timeoutError{}}
		}
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	}), fastRetry)

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("expected recovery after timeout, got %v", err)
	}

	plain := errors.New("certificate signed by unknown authority")
	calls = 0
	transport = newRetryTransport(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, plain
	}), fastRetry)
	if _, err := transport.RoundTrip(req); !errors.Is(err, plain) {
		t.Fatalf("expected non-retryable error returned, got %v", err)
	}
	if c := atomic.LoadInt32(&calls); c != 1 {
		t.Fatalf("expected no retry for non-network error, got %d calls", c)
	}
}

func TestRetryTransportReplaysBody(t *testing.T) {
	var calls int32
	transport := newRetryTransport(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		n := atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(req.Body)
		if string(body) != `{"videoId":"x"}` {
			t.Errorf("attempt %d: unexpected body %q", n, body)
		}
		if n == 1 {
			return &http.Response{StatusCode: 500, Body: http.NoBody, Header: http.Header{}}, nil
		}
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	}), fastRetry)

	req, _ := http.NewRequest(http.MethodPost, "https://example.com", strings.NewReader(`{"videoId":"x"}`))
	resp, err := transport.RoundTrip(req)
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("expected 200 after replay, got %v", err)
	}
	if c := atomic.LoadInt32(&calls); c != 2 {
		t.Fatalf("expected 2 calls, got %d", c)
	}
}

func TestRetryAfterHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"1"}}}
	if d, ok := retryAfter(resp, 5*time.Second); !ok || d != time.Second {
		t.Fatalf("expected 1s, got %v %v", d, ok)
	}
	resp.Header.Set("Retry-After", "120")
	if d, _ := retryAfter(resp, 2*time.Second); d != 2*time.Second {
		t.Fatalf("expected cap at 2s, got %v", d)
	}
	resp.Header.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	if _, ok := retryAfter(resp, time.Second); ok {
		t.Fatalf("expected HTTP-date form to be ignored")
	}
}

func TestBackoffDelay(t *testing.T) {
	rt := newRetryTransport(nil, retryConfig{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
	})
	ranges := []struct{ lo, hi time.Duration }{
		{75 * time.Millisecond, 125 * time.Millisecond},
		{150 * time.Millisecond, 250 * time.Millisecond},
		{225 * time.Millisecond, 375 * time.Millisecond},
	}
	for i, r := range ranges {
		d := rt.backoffDelay(i + 1)
		if d < r.lo || d > r.hi {
			t.Fatalf("attempt %d delay %v outside [%v, %v]", i+1, d, r.lo, r.hi)
		}
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true } //nolint:staticcheck
