// Package httpx holds the HTTP client and retry helpers shared by the search
// gateways and LLM providers.
package httpx

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewClient returns an HTTP client with bounded dial and handshake timeouts.
func NewClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// Retry calls fn up to attempts times with exponential backoff from initial,
// capped at maxDelay. Errors wrapped with backoff.Permanent stop it early and are
// returned unwrapped; a done ctx stops it with ctx.Err().
func Retry(ctx context.Context, attempts int, initial, maxDelay time.Duration, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.MaxInterval = maxDelay
	eb.MaxElapsedTime = 0

	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
	return backoff.Retry(fn, b)
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return http.StatusText(e.Code)
	}
	return http.StatusText(e.Code) + ": " + e.Body
}

// Retryable reports whether a response status is worth retrying.
func Retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
