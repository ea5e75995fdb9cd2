// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. Each implementation serves
// exactly one (backend, model) pair identified by an embedding model tag, so
// the retrieval layer can resolve the right embedding space per file group.
// OpenAI, Azure OpenAI, and Ollama speak plain HTTP; Gemini uses the genai SDK.
package embedder

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported embedding backends.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI embeddings API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service embeddings.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini embeddings via the genai SDK.
	BackendGemini Backend = "gemini"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ — override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768
)

// Tag builds the embedding model tag for a (backend, model) pair. The tag is
// what gets stamped on every chunk at ingest time and what the group resolver
// partitions attachments by.
func Tag(backend Backend, model string) string {
	return fmt.Sprintf("%s:%s", backend, model)
}

// ParseTag splits an embedding model tag back into its backend and model.
func ParseTag(tag string) (Backend, string, error) {
	backend, model, ok := strings.Cut(tag, ":")
	if !ok || backend == "" || model == "" {
		return "", "", fmt.Errorf("embedder: malformed model tag %q — want \"backend:model\"", tag)
	}
	return Backend(backend), model, nil
}

// DefaultDimensions returns the default embedding vector size for the given
// backend. Callers that pre-configure a vector store (e.g. Qdrant collection
// creation) should use this rather than hardcoding a value.
func DefaultDimensions(backend Backend) int {
	switch backend {
	case BackendOllama:
		return defaultOllamaDimensions
	case BackendGemini:
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// DefaultModel returns the default embedding model name for the given backend.
func DefaultModel(backend Backend) string {
	switch backend {
	case BackendOllama:
		return defaultOllamaModel
	case BackendGemini:
		return defaultGeminiModel
	default:
		return defaultOpenAIModel
	}
}
