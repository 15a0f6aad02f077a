package downloader

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
)

// FingerprintTransport returns an HTTP transport whose TLS ClientHello mimics
// the named client (chrome, firefox, ios, randomized). An empty name returns
// nil so callers fall back to the shared transport.
func FingerprintTransport(name string) (http.RoundTripper, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil, nil
	case "chrome":
		return newUTLSTransport(utls.HelloChrome_Auto), nil
	case "firefox":
		return newUTLSTransport(utls.HelloFirefox_Auto), nil
	case "ios":
		return newUTLSTransport(utls.HelloIOS_Auto), nil
	case "randomized":
		return newUTLSTransport(utls.HelloRandomizedNoALPN), nil
	}
	return nil, fmt.Errorf("unknown TLS fingerprint %q", name)
}

func newUTLSTransport(hello utls.ClientHelloID) *http.Transport {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			rawConn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				rawConn.Close()
				return nil, err
			}
			conn, err := handshakeHTTP1(ctx, rawConn, host, hello)
			if err != nil {
				rawConn.Close()
				return nil, err
			}
			return conn, nil
		},
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// handshakeHTTP1 performs the uTLS handshake with ALPN pinned to http/1.1;
// net/http cannot speak h2 over a connection it did not negotiate itself.
func handshakeHTTP1(ctx context.Context, rawConn net.Conn, host string, hello utls.ClientHelloID) (*utls.UConn, error) {
	config := &utls.Config{ServerName: host, NextProtos: []string{"http/1.1"}}
	if hello == utls.HelloRandomizedNoALPN {
		conn := utls.UClient(rawConn, config, hello)
		return conn, conn.HandshakeContext(ctx)
	}

	spec, err := utls.UTLSIdToSpec(hello)
	if err != nil {
		return nil, err
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	conn := utls.UClient(rawConn, config, utls.HelloCustom)
	if err := conn.ApplyPreset(&spec); err != nil {
		return nil, err
	}
	return conn, conn.HandshakeContext(ctx)
}
