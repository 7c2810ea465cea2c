// Package httpx builds HTTP clients for operational probes.
package httpx

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultProbeTimeout = 5 * time.Second
	maxDialTimeout      = 3 * time.Second
)

// NewProbeClient returns a client for short local probes such as the
// healthcheck subcommand. Dial and header waits never exceed the overall
// timeout; keep-alives are off since every probe is a single request.
func NewProbeClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	dial := min(timeout, maxDialTimeout)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: dial}).DialContext,
			DisableKeepAlives:     true,
			ResponseHeaderTimeout: timeout,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
