package client

import (
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimitedTransport holds each outbound request until the limiter grants it a slot.
type rateLimitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

// newRateLimitedTransport wraps next; a non-positive perSecond returns next unchanged.
func newRateLimitedTransport(next http.RoundTripper, perSecond float64, burst int) http.RoundTripper {
	if perSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedTransport{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	return t.next.RoundTrip(req)
}

type idleCloser interface{ CloseIdleConnections() }

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the wrapped transport.
func (t *rateLimitedTransport) CloseIdleConnections() {
	closeIdle(t.next)
}

func closeIdle(rt http.RoundTripper) {
	if c, ok := rt.(idleCloser); ok {
		c.CloseIdleConnections()
	}
}
