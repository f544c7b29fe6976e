// Package transport builds the HTTP client shared by the resolver and the fetcher.
package transport

import (
	"net"
	"net/http"
	"time"
)

const (
	// keepAliveInterval keeps long downloads alive through NAT gateways.
	keepAliveInterval = 20 * time.Second
	// tlsHandshakeTimeout bounds the TLS handshake separately from connect.
	tlsHandshakeTimeout = 15 * time.Second
)

// NewHTTPClient returns a client that opens a fresh connection per request.
// Devices run one request every hour at best, so pooled connections would
// only go stale. The overall deadline comes from the request context.
func NewHTTPClient(connectTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: keepAliveInterval,
	}

	//nolint:exhaustruct // Zero values are the documented defaults.
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: tlsHandshakeTimeout,
			DisableKeepAlives:   true,
			ForceAttemptHTTP2:   true,
		},
	}
}
