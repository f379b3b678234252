// Package httpclient builds the resilient HTTP transport shared by every
// outbound integration: the ATS client, the mail sender's webhook probes,
// and the embedding service's Ollama calls.
package httpclient

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// RateLimitedTransport wraps an http.RoundTripper with a token-bucket limiter,
// so a client respects an upstream's documented requests-per-second budget
// without needing per-call throttling logic.
type RateLimitedTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

// NewRateLimitedClient creates an HTTP client that blocks each request until
// the limiter admits it. ratePerSecond <= 0 disables limiting.
func NewRateLimitedClient(timeout time.Duration, ratePerSecond float64, burst int) *http.Client {
	base := http.DefaultTransport
	if ratePerSecond <= 0 {
		return &http.Client{Timeout: timeout, Transport: base}
	}
	if burst < 1 {
		burst = 1
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &RateLimitedTransport{
			Base:    base,
			Limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		},
	}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.Base.RoundTrip(req)
}

// NewCircuitBreaker builds a circuit breaker that trips after a run of
// consecutive failures, used to stop hammering an ATS that is returning
// errors so every caller fails fast instead of queueing behind slow retries.
func NewCircuitBreaker(name string, maxConsecutiveFailures uint32, openDuration time.Duration) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: openDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxConsecutiveFailures
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
