package provider

import (
	"context"
	"time"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/metrics"
	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a token bucket. Every Chat call waits
// for a token before reaching the backend.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited limits p to rps requests per second with the given burst.
// A non-positive rps returns p unchanged.
func NewRateLimited(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{Provider: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Chat waits for the limiter, then delegates.
func (r *RateLimited) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if waited := time.Since(start); waited > 10*time.Millisecond {
		metrics.RateLimitWait.WithLabelValues(r.ID()).Observe(waited.Seconds())
	}
	return r.Provider.Chat(ctx, req)
}
