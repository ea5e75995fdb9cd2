package vectorstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
)

// dedupePrefixLen is how many characters of a chunk's text feed the content
// hash used to deduplicate results replicated across backends. The memory
// backend intentionally mirrors the persistent backends, so the same content
// routinely comes back from more than one of them.
const dedupePrefixLen = 256

// defaultBackendTimeout bounds each individual backend call. Pure vector
// lookups are fast; anything slower than this is treated as a failed backend
// for the current call.
const defaultBackendTimeout = 10 * time.Second

// Router presents a single rag.VectorBackend surface while fanning each call
// out to every active backend. A backend that errors or times out is logged
// and excluded from that call's results — it never fails the whole router
// call. Results are merged and deduplicated by content hash.
type Router struct {
	// backends is the ordered list of active backends.
	backends []rag.VectorBackend

	// timeout bounds each per-backend call.
	timeout time.Duration
}

// NewRouter constructs a Router over the given active backends. A zero
// timeout falls back to the default.
func NewRouter(backends []rag.VectorBackend, timeout time.Duration) (*Router, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("vectorstore: router needs at least one backend")
	}
	if timeout <= 0 {
		timeout = defaultBackendTimeout
	}
	return &Router{backends: backends, timeout: timeout}, nil
}

// Name identifies the router in logs and debug records.
func (r *Router) Name() string { return "router" }

// Backends returns the names of the active backends, for diagnostics.
func (r *Router) Backends() []string {
	names := make([]string, 0, len(r.backends))
	for _, b := range r.backends {
		names = append(names, b.Name())
	}
	return names
}

// fanOut runs fn against every backend concurrently with the router timeout
// and collects the per-backend results. Errors are logged and dropped.
func (r *Router) fanOut(ctx context.Context, op string, fn func(ctx context.Context, b rag.VectorBackend) ([]rag.Result, error)) [][]rag.Result {
	log := logging.FromContext(ctx)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		batches [][]rag.Result
	)
	for _, backend := range r.backends {
		wg.Add(1)
		go func(b rag.VectorBackend) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			results, err := fn(callCtx, b)
			if err != nil {
				log.Warn("vectorstore: backend excluded from call",
					slog.String("backend", b.Name()),
					slog.String("op", op),
					slog.String("error", err.Error()),
				)
				return
			}
			mu.Lock()
			batches = append(batches, results)
			mu.Unlock()
		}(backend)
	}
	wg.Wait()
	return batches
}

// contentKey returns the dedupe key for a result: a hash of the first
// dedupePrefixLen characters of its text.
func contentKey(res rag.Result) string {
	text := res.Text
	if len(text) > dedupePrefixLen {
		text = text[:dedupePrefixLen]
	}
	h := sha256.Sum256([]byte(text))
	return string(h[:])
}

// dedupe flattens batches keeping the first (best-scoring) occurrence of each
// content key. Batches are walked in descending-score order first so the
// retained duplicate is always the highest scoring one.
func dedupe(batches [][]rag.Result) []rag.Result {
	var merged []rag.Result
	for _, batch := range batches {
		merged = append(merged, batch...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	seen := make(map[string]bool, len(merged))
	out := merged[:0]
	for _, res := range merged {
		key := contentKey(res)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, res)
	}
	return out
}

// Upsert stores the chunks in every backend. Unlike reads, a write failure is
// reported: losing a persistent copy silently would leave the caches as the
// only replica. The first error is returned after all backends were attempted.
func (r *Router) Upsert(ctx context.Context, chunks []rag.Chunk) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, backend := range r.backends {
		wg.Add(1)
		go func(b rag.VectorBackend) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			if err := b.Upsert(callCtx, chunks); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("vectorstore: upsert on %s: %w", b.Name(), err)
				}
				mu.Unlock()
			}
		}(backend)
	}
	wg.Wait()
	return firstErr
}

// Query fans the similarity search out to every backend, merges the surviving
// results, deduplicates by content hash, and returns the global top k.
func (r *Router) Query(ctx context.Context, embedding []float32, k int, filter rag.Filter) ([]rag.Result, error) {
	batches := r.fanOut(ctx, "query", func(ctx context.Context, b rag.VectorBackend) ([]rag.Result, error) {
		return b.Query(ctx, embedding, k, filter)
	})
	merged := dedupe(batches)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// FetchAll fans the positional fetch out to every backend, deduplicates, and
// returns up to limit chunks ordered by filename then chunk index.
func (r *Router) FetchAll(ctx context.Context, filter rag.Filter, limit int) ([]rag.Result, error) {
	batches := r.fanOut(ctx, "fetch_all", func(ctx context.Context, b rag.VectorBackend) ([]rag.Result, error) {
		return b.FetchAll(ctx, filter, limit)
	})
	merged := dedupe(batches)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Filename != merged[j].Filename {
			return merged[i].Filename < merged[j].Filename
		}
		return merged[i].Index < merged[j].Index
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// DeleteFile cascades the deletion to every backend. All backends are
// attempted; the first error is returned so the caller can retry the cascade.
func (r *Router) DeleteFile(ctx context.Context, fileID string) error {
	var firstErr error
	for _, b := range r.backends {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := b.DeleteFile(callCtx, fileID)
		cancel()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("vectorstore: delete file on %s: %w", b.Name(), err)
		}
	}
	return firstErr
}

// Close closes every backend, returning the first error encountered.
func (r *Router) Close() error {
	var firstErr error
	for _, b := range r.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
