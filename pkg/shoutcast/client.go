package shoutcast

import (
	"net"
	"net/http"
	"time"
)

// SonosUserAgent mimics the HTTP client of the target speakers.
const SonosUserAgent = "Linux UPnP/1.0 Sonos/99.9 (Probe)"

const (
	dialTimeout           = 5 * time.Second
	responseHeaderTimeout = 10 * time.Second
)

// NewClient returns an http.Client that sends userAgent on every request and
// follows redirects. A zero timeout leaves the body read unbounded; only the
// dial and the response headers are then subject to a deadline.
func NewClient(userAgent string, timeout time.Duration) *http.Client {
	if userAgent == "" {
		userAgent = SonosUserAgent
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: responseHeaderTimeout,
	}

	return &http.Client{
		Transport: &identityTransport{userAgent: userAgent, base: transport},
		Timeout:   timeout,
	}
}

// identityTransport stamps the configured user agent on outgoing requests,
// including the ones issued while following redirects.
type identityTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t *identityTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", "*/*")
	}
	return t.base.RoundTrip(r)
}
