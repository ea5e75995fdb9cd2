// Package vectorstore provides the concrete rag.VectorBackend implementations
// (Qdrant, pgvector, in-memory) and the Router that fans retrieval calls out
// across whichever backends are active.
package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docchat-go/internal/rag"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// CollectionPrefix is prepended to the per-tag collection names
	// (default: "docchat"). Vectors from different embedding model tags have
	// different dimensions, so each tag gets its own collection.
	CollectionPrefix string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements rag.VectorBackend backed by a Qdrant instance.
// Chunks are partitioned into one collection per embedding model tag so that
// vectors from incompatible spaces never share an index.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// mu protects collections.
	mu sync.Mutex

	// collections records which per-tag collections are known to exist, to
	// avoid a CollectionExists round-trip on every upsert.
	collections map[string]bool
}

// NewQdrantStore creates a new QdrantStore. Per-tag collections are created
// lazily on first upsert, so no dimension needs to be known up front.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "docchat"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{
		client:      client,
		cfg:         cfg,
		collections: make(map[string]bool),
	}, nil
}

// Name identifies this backend in logs and debug records.
func (s *QdrantStore) Name() string { return "qdrant" }

// collectionFor maps an embedding model tag to its collection name.
// Tags contain ':' which Qdrant collection names do not allow.
func (s *QdrantStore) collectionFor(tag string) string {
	return s.cfg.CollectionPrefix + "-" + strings.ReplaceAll(tag, ":", "-")
}

// ensureCollection creates the per-tag collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context, tag string, dimension int) (string, error) {
	name := s.collectionFor(tag)

	s.mu.Lock()
	known := s.collections[name]
	s.mu.Unlock()
	if known {
		return name, nil
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension), //nolint:gosec // dimensions are bounded
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return "", fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
		}
	}

	s.mu.Lock()
	s.collections[name] = true
	s.mu.Unlock()
	return name, nil
}

// payload keys stored with every point.
const (
	payloadText     = "text"
	payloadFileID   = "file_id"
	payloadConvID   = "conversation_id"
	payloadOwnerID  = "owner_id"
	payloadFilename = "filename"
	payloadModelTag = "model_tag"
	payloadDim      = "dimension"
	payloadIndex    = "chunk_index"
	payloadTotal    = "total_chunks"
)

// Upsert stores or updates a batch of chunks. All chunks in one call must
// share a model tag; mixed batches are rejected because they would span
// collections with different vector sizes.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tag := chunks[0].ModelTag
	for _, c := range chunks[1:] {
		if c.ModelTag != tag {
			return fmt.Errorf("qdrant: upsert batch mixes model tags %q and %q", tag, c.ModelTag)
		}
	}

	collection, err := s.ensureCollection(ctx, tag, chunks[0].Dimension)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				payloadText:     c.Text,
				payloadFileID:   c.FileID,
				payloadConvID:   c.ConversationID,
				payloadOwnerID:  c.OwnerID,
				payloadFilename: c.Filename,
				payloadModelTag: c.ModelTag,
				payloadDim:      int64(c.Dimension),
				payloadIndex:    int64(c.Index),
				payloadTotal:    int64(c.TotalChunks),
			}),
		})
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// buildFilter converts a rag.Filter into the Qdrant payload filter.
func buildFilter(filter rag.Filter) *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatch(payloadConvID, filter.ConversationID),
		qdrant.NewMatch(payloadOwnerID, filter.OwnerID),
	}
	if len(filter.FileIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords(payloadFileID, filter.FileIDs...))
	}
	return &qdrant.Filter{Must: must}
}

// Query performs a cosine similarity search in the filter's embedding space
// and returns up to k results.
func (s *QdrantStore) Query(ctx context.Context, embedding []float32, k int, filter rag.Filter) ([]rag.Result, error) {
	collection := s.collectionFor(filter.ModelTag)

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		// Nothing ingested under this tag yet.
		return nil, nil
	}

	limit := uint64(k) //nolint:gosec // k is validated by the orchestrator
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         buildFilter(filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]rag.Result, 0, len(points))
	for _, p := range points {
		r := rag.Result{
			Score: p.Score,
			// Cosine similarity in [−1, 1]; native distance is its complement.
			Distance: 1 - p.Score,
		}
		r.Chunk = chunkFromPayload(p.Id.GetUuid(), p.Payload)
		results = append(results, r)
	}

	return results, nil
}

// FetchAll returns up to limit chunks matching filter via a scroll, without
// similarity ranking.
func (s *QdrantStore) FetchAll(ctx context.Context, filter rag.Filter, limit int) ([]rag.Result, error) {
	collection := s.collectionFor(filter.ModelTag)

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return nil, nil
	}

	scrollLimit := uint32(limit) //nolint:gosec // limit is the bounded full-file ceiling
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         buildFilter(filter),
		Limit:          &scrollLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
	}

	results := make([]rag.Result, 0, len(points))
	for _, p := range points {
		r := rag.Result{}
		r.Chunk = chunkFromPayload(p.Id.GetUuid(), p.Payload)
		results = append(results, r)
	}

	return results, nil
}

// DeleteFile removes every chunk of the given file from every per-tag
// collection. A file lives in exactly one collection, but the tag is not
// known at deletion time, so the filter is applied to each known collection.
func (s *QdrantStore) DeleteFile(ctx context.Context, fileID string) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("qdrant: list collections failed: %w", err)
	}

	selector := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadFileID, fileID)},
	}
	for _, name := range collections {
		if !strings.HasPrefix(name, s.cfg.CollectionPrefix+"-") {
			continue
		}
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points:         qdrant.NewPointsSelectorFilter(selector),
		})
		if err != nil {
			return fmt.Errorf("qdrant: delete from %q failed: %w", name, err)
		}
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// chunkFromPayload rebuilds a rag.Chunk from a point's payload map.
func chunkFromPayload(id string, payload map[string]*qdrant.Value) rag.Chunk {
	c := rag.Chunk{ID: id}
	if payload == nil {
		return c
	}
	if v, ok := payload[payloadText]; ok {
		c.Text = v.GetStringValue()
	}
	if v, ok := payload[payloadFileID]; ok {
		c.FileID = v.GetStringValue()
	}
	if v, ok := payload[payloadConvID]; ok {
		c.ConversationID = v.GetStringValue()
	}
	if v, ok := payload[payloadOwnerID]; ok {
		c.OwnerID = v.GetStringValue()
	}
	if v, ok := payload[payloadFilename]; ok {
		c.Filename = v.GetStringValue()
	}
	if v, ok := payload[payloadModelTag]; ok {
		c.ModelTag = v.GetStringValue()
	}
	if v, ok := payload[payloadDim]; ok {
		c.Dimension = int(v.GetIntegerValue())
	}
	if v, ok := payload[payloadIndex]; ok {
		c.Index = int(v.GetIntegerValue())
	}
	if v, ok := payload[payloadTotal]; ok {
		c.TotalChunks = int(v.GetIntegerValue())
	}
	return c
}
