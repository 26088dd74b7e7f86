package embeddings

import (
	"context"
	"sync"
	"time"
)

// RateLimitedEmbedder wraps an Embedder with a token bucket limiter, keeping
// batched indexing runs under a hosted API's requests-per-minute quota.
type RateLimitedEmbedder struct {
	inner    Embedder
	rpm      int
	mu       sync.Mutex
	tokens   int
	lastFill time.Time
}

// NewRateLimitedEmbedder wraps the given embedder with a rate limiter that
// allows at most rpm calls per minute.
func NewRateLimitedEmbedder(inner Embedder, rpm int) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{
		inner:    inner,
		rpm:      rpm,
		tokens:   rpm,
		lastFill: time.Now(),
	}
}

func (r *RateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitedEmbedder) Dimensions() int { return r.inner.Dimensions() }

func (r *RateLimitedEmbedder) Name() string { return r.inner.Name() }

func (r *RateLimitedEmbedder) wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(r.lastFill)

		refill := int(elapsed.Seconds() * float64(r.rpm) / 60.0)
		if refill > 0 {
			r.tokens += refill
			if r.tokens > r.rpm {
				r.tokens = r.rpm
			}
			r.lastFill = now
		}

		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
