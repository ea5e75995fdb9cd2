package embedder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/54b3r/docchat-go/internal/rag"
)

// rateLimitedEmbedder wraps another embedder with a token-bucket rate limit.
// Hosted embedding APIs throttle aggressively; waiting locally turns a 429
// storm during bulk ingestion into smooth backpressure. The Wait call honours
// context cancellation, so a timed-out group does not keep queueing requests.
type rateLimitedEmbedder struct {
	// next is the wrapped embedder.
	next rag.Embedder
	// limiter is the shared token bucket for all calls through this wrapper.
	limiter *rate.Limiter
}

// WrapRateLimited decorates e with a token-bucket rate limiter allowing rps
// sustained embed calls per second with the given burst. Returns e unchanged
// when rps is not positive.
func WrapRateLimited(e rag.Embedder, rps float64, burst int) rag.Embedder {
	if rps <= 0 {
		return e
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedEmbedder{
		next:    e,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Embed waits for limiter capacity, then delegates to the wrapped embedder.
func (r *rateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedder: rate limit wait: %w", err)
	}
	return r.next.Embed(ctx, texts)
}

// Dimensions returns the wrapped embedder's vector length.
func (r *rateLimitedEmbedder) Dimensions() int {
	return r.next.Dimensions()
}

// Tag returns the wrapped embedder's model tag.
func (r *rateLimitedEmbedder) Tag() string {
	return r.next.Tag()
}
