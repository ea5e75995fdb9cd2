package vectorstore

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/54b3r/docchat-go/internal/rag"
)

// MemoryStore implements rag.VectorBackend as an in-process TTL-bounded LRU
// cache of recently ingested chunks. It is a read accelerator in front of the
// persistent backends: the same chunks also live in Qdrant or pgvector, and
// the Router deduplicates across backends. Eviction or restart loses nothing.
type MemoryStore struct {
	// cache holds chunks keyed by chunk ID with TTL eviction.
	cache *expirable.LRU[string, rag.Chunk]
}

// DefaultMemoryCapacity bounds the number of chunks held when no explicit
// capacity is configured.
const DefaultMemoryCapacity = 4096

// DefaultMemoryTTL is how long a cached chunk stays queryable when no
// explicit TTL is configured.
const DefaultMemoryTTL = 30 * time.Minute

// NewMemoryStore constructs a MemoryStore with the given capacity and TTL.
// Non-positive values fall back to the defaults.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, rag.Chunk](capacity, nil, ttl),
	}
}

// Name identifies this backend in logs and debug records.
func (s *MemoryStore) Name() string { return "memory" }

// Upsert stores or refreshes a batch of chunks in the cache.
func (s *MemoryStore) Upsert(_ context.Context, chunks []rag.Chunk) error {
	for _, c := range chunks {
		s.cache.Add(c.ID, c)
	}
	return nil
}

// matches reports whether a cached chunk passes the filter. The model tag
// check keeps incompatible embedding spaces apart even in the shared cache.
func matches(c rag.Chunk, filter rag.Filter) bool {
	if c.ConversationID != filter.ConversationID || c.OwnerID != filter.OwnerID {
		return false
	}
	if filter.ModelTag != "" && c.ModelTag != filter.ModelTag {
		return false
	}
	return filter.MatchesFile(c.FileID)
}

// Query scores every matching cached chunk against the query embedding and
// returns the top k by cosine similarity.
func (s *MemoryStore) Query(_ context.Context, embedding []float32, k int, filter rag.Filter) ([]rag.Result, error) {
	var results []rag.Result
	for _, c := range s.cache.Values() {
		if !matches(c, filter) {
			continue
		}
		if len(c.Embedding) != len(embedding) {
			// Stale or foreign-space entry; never score it.
			continue
		}
		score := cosineSimilarity(embedding, c.Embedding)
		results = append(results, rag.Result{
			Chunk:    c,
			Score:    score,
			Distance: 1 - score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// FetchAll returns up to limit matching cached chunks without scoring.
func (s *MemoryStore) FetchAll(_ context.Context, filter rag.Filter, limit int) ([]rag.Result, error) {
	var results []rag.Result
	for _, c := range s.cache.Values() {
		if !matches(c, filter) {
			continue
		}
		results = append(results, rag.Result{Chunk: c})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// DeleteFile evicts every cached chunk belonging to the given file.
func (s *MemoryStore) DeleteFile(_ context.Context, fileID string) error {
	for _, key := range s.cache.Keys() {
		if c, ok := s.cache.Peek(key); ok && c.FileID == fileID {
			s.cache.Remove(key)
		}
	}
	return nil
}

// Close is a no-op; the cache is garbage collected.
func (s *MemoryStore) Close() error { return nil }

// cosineSimilarity returns the cosine of the angle between a and b.
// Both slices must have equal length; zero vectors score zero.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
