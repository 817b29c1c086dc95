package fetch

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient builds the client used for segment downloads. It sets no
// total request timeout: per-speaker recording files run for hours and their
// transfer outlives any fixed deadline, so an actively flowing download is
// bounded only by the request context. Connection setup and the wait for
// response headers are still held to headerTimeout.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   headerTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   headerTimeout,
			ResponseHeaderTimeout: headerTimeout,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
