// Package rag defines the core types and interfaces shared by the retrieval
// engine: document chunks, retrieval results, embedding adapters, and vector
// store backends. Concrete implementations (Qdrant, pgvector, in-memory,
// OpenAI, Ollama, Gemini) satisfy these interfaces so the orchestration layer
// never depends on a specific backend.
package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Chunk is the atomic retrievable unit: a bounded slice of one uploaded file,
// together with the embedding produced at ingest time.
type Chunk struct {
	// ID is the stable chunk identifier, derived from the file ID and the
	// chunk index via [ChunkID].
	ID string

	// FileID identifies the file attachment this chunk was cut from.
	FileID string

	// ConversationID scopes the chunk to one conversation.
	ConversationID string

	// OwnerID is the user who uploaded the file. Retrieval never crosses
	// owner boundaries.
	OwnerID string

	// Text is the raw text content of the chunk.
	Text string

	// Embedding is the dense vector produced by the model identified by
	// ModelTag. Its length always equals Dimension.
	Embedding []float32

	// ModelTag identifies the (provider, model) pair that produced the
	// embedding, e.g. "ollama:nomic-embed-text". Vectors from different
	// tags are never compared.
	ModelTag string

	// Dimension is the embedding vector length declared by the model.
	Dimension int

	// Index is the zero-based position of this chunk within its file.
	Index int

	// TotalChunks is the number of chunks the file was cut into.
	TotalChunks int

	// Filename is the original name of the uploaded file, kept for citations.
	Filename string
}

// Result is a single retrieval hit: a chunk plus the backend's native
// similarity score and distance for the query it was retrieved against.
type Result struct {
	Chunk

	// Score is the similarity in the backend's native scale, higher is
	// better. Scores are only comparable within one embedding space.
	Score float32

	// Distance is the backend's native distance, lower is better. Zero when
	// the backend reports similarity only.
	Distance float32
}

// Filter restricts a vector store operation to one conversation, one owner,
// one embedding space, and optionally a subset of files. A nil or empty
// FileIDs slice matches every file in the conversation.
type Filter struct {
	// ConversationID scopes the operation to one conversation. Required.
	ConversationID string

	// OwnerID scopes the operation to the uploading user. Required.
	OwnerID string

	// ModelTag scopes the operation to one embedding space. Backends that
	// partition storage by tag (e.g. one Qdrant collection per tag) use this
	// to route; the rest filter on it.
	ModelTag string

	// Dimension is the vector length for ModelTag, used by backends that
	// must size storage up front.
	Dimension int

	// FileIDs optionally restricts the operation to these files.
	FileIDs []string
}

// MatchesFile reports whether the filter admits the given file ID.
func (f Filter) MatchesFile(fileID string) bool {
	if len(f.FileIDs) == 0 {
		return true
	}
	for _, id := range f.FileIDs {
		if id == fileID {
			return true
		}
	}
	return false
}

// Embedder converts text into dense vector embeddings for exactly one
// (provider, model) pair. Implementations must be safe to call from multiple
// goroutines: group retrieval runs embedders for different tags concurrently.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length this embedder produces.
	Dimensions() int

	// Tag returns the embedding model tag this embedder serves.
	Tag() string
}

// VectorBackend is one concrete vector store. Implementations must be safe
// to call from multiple goroutines.
type VectorBackend interface {
	// Name identifies the backend in logs and debug records ("qdrant",
	// "pgvector", "memory").
	Name() string

	// Upsert stores or updates a batch of chunks with their pre-computed
	// embeddings.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Query performs a similarity search restricted by filter and returns up
	// to k results ordered by the backend's notion of relevance.
	Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Result, error)

	// FetchAll returns up to limit chunks matching filter without similarity
	// ranking, for full-document retrieval. Order is backend-defined; callers
	// re-sort by chunk index.
	FetchAll(ctx context.Context, filter Filter, limit int) ([]Result, error)

	// DeleteFile removes every chunk belonging to the given file.
	DeleteFile(ctx context.Context, fileID string) error

	// Close releases any resources held by the backend.
	Close() error
}

// FileStatus is the processing state of a file attachment.
type FileStatus string

const (
	// StatusPending means the file is uploaded but not yet ingested.
	StatusPending FileStatus = "pending"
	// StatusProcessing means the ingestion worker is chunking and embedding
	// the file.
	StatusProcessing FileStatus = "processing"
	// StatusCompleted means every chunk is embedded and stored; the
	// attachment is immutable from here on.
	StatusCompleted FileStatus = "completed"
	// StatusFailed means ingestion failed; the file has no retrievable chunks.
	StatusFailed FileStatus = "failed"
)

// FileRef is a conversation-scoped reference to an uploaded file. It carries
// the embedding model tag that was active when the file was ingested, which
// is what the group resolver partitions on.
type FileRef struct {
	// ID is the file attachment identifier.
	ID string

	// ConversationID scopes the attachment to one conversation.
	ConversationID string

	// OwnerID is the uploading user.
	OwnerID string

	// Filename is the original upload name.
	Filename string

	// Path is the local path of the uploaded bytes, consumed by the
	// ingestion worker.
	Path string

	// ModelTag is the embedding model tag active at ingest time.
	ModelTag string

	// Dimension is the embedding vector length for ModelTag.
	Dimension int

	// Status is the current processing state.
	Status FileStatus

	// TotalChunks is the chunk count recorded when ingestion completed.
	TotalChunks int
}

// ChunkID returns the stable identifier for chunk index of the given file,
// as a name-based UUID so every backend (Qdrant requires UUID point IDs)
// accepts it. The ID is deterministic so re-ingesting a file overwrites its
// chunks instead of duplicating them.
func ChunkID(fileID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s#%d", fileID, index)).String()
}
