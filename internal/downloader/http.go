package downloader

import (
	"net"
	"net/http"
	"time"
)

// browserUserAgent is sent on metadata lookups that would otherwise be
// served a consent or bot-check page.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// sharedTransport pools connections for every strategy and metadata tier
// that does not need a TLS fingerprint. Header timeouts are kept below the
// shortest per-call strategy budget.
var sharedTransport = newPooledTransport()

func newPooledTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// CloseIdleConnections drops pooled upstream connections. The server calls
// it after shutdown.
func CloseIdleConnections() {
	sharedTransport.CloseIdleConnections()
}

type consistentTransport struct {
	base      http.RoundTripper
	userAgent string
}

// RoundTrip fills missing browser headers on a clone; the caller's request
// is never modified.
func (t *consistentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	return t.base.RoundTrip(req)
}

// newHTTPClient builds the client used for metadata lookups: browser-like
// headers plus retries on transient failures.
func newHTTPClient(timeout time.Duration) *http.Client {
	var transport http.RoundTripper = &consistentTransport{
		base:      sharedTransport,
		userAgent: browserUserAgent,
	}
	transport = newRetryTransport(transport, defaultRetryConfig)
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
