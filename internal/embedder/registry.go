package embedder

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/54b3r/docchat-go/internal/rag"
)

// Registry maps embedding model tags to their adapters. The retrieval
// orchestrator resolves an embedder per file group so that each group's query
// is embedded in that group's own space — there is no "current" embedder and
// nothing to switch globally. Safe for concurrent use.
type Registry struct {
	// mu protects embedders.
	mu sync.RWMutex
	// embedders maps model tag to its adapter.
	embedders map[string]rag.Embedder
	// activeTag is the tag stamped on newly ingested files.
	activeTag string
}

// NewRegistry constructs an empty Registry with the given active tag.
func NewRegistry(activeTag string) *Registry {
	return &Registry{
		embedders: make(map[string]rag.Embedder),
		activeTag: activeTag,
	}
}

// Register adds an embedder under its own tag, replacing any previous
// registration for that tag.
func (r *Registry) Register(e rag.Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedders[e.Tag()] = e
}

// Resolve returns the embedder for the given tag. An unknown tag is an error:
// the caller treats the affected group as failed rather than silently
// embedding in the wrong space.
func (r *Registry) Resolve(tag string) (rag.Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.embedders[tag]
	if !ok {
		return nil, fmt.Errorf("embedder: no adapter registered for model tag %q", tag)
	}
	return e, nil
}

// Active returns the embedder for the active tag — the one used to embed
// newly uploaded files.
func (r *Registry) Active() (rag.Embedder, error) {
	return r.Resolve(r.activeTag)
}

// ActiveTag returns the tag stamped on newly ingested files.
func (r *Registry) ActiveTag() string {
	return r.activeTag
}

// Tags returns the sorted list of registered model tags.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.embedders))
	for tag := range r.embedders {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// NewRegistryFromEnv constructs a Registry containing an adapter for every
// backend listed in EMBEDDING_PROVIDERS. A workspace that has switched
// embedding providers over its lifetime still holds files embedded with the
// old tags, so every tag that may appear on a stored file needs a registered
// adapter for its group to be retrievable.
//
// Environment variables:
//
//	EMBEDDING_PROVIDERS  = comma-separated backends to register (default: value of EMBEDDING_PROVIDER)
//	EMBEDDING_PROVIDER   = backend used for new ingests (default: ollama)
//	EMBEDDING_DIMENSIONS = override vector size for the active backend
//	EMBEDDING_RPS        = rate limit for embed calls, requests/second (0 = unlimited)
//
//	Ollama: OLLAMA_HOST (default http://localhost:11434), OLLAMA_EMBEDDING_MODEL
//	OpenAI: OPENAI_API_KEY or EMBEDDING_API_KEY, OPENAI_EMBEDDING_MODEL
//	Azure:  AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_VERSION
//	Gemini: GOOGLE_API_KEY, GEMINI_EMBEDDING_MODEL
func NewRegistryFromEnv(ctx context.Context) (*Registry, error) {
	active := getEnvOrDefault("EMBEDDING_PROVIDER", string(BackendOllama))
	list := getEnvOrDefault("EMBEDDING_PROVIDERS", active)

	backends := make([]Backend, 0, 4)
	for _, raw := range strings.Split(list, ",") {
		b := Backend(strings.TrimSpace(strings.ToLower(raw)))
		if b == "" {
			continue
		}
		backends = append(backends, b)
	}
	if len(backends) == 0 {
		backends = append(backends, BackendOllama)
	}

	activeBackend := Backend(active)
	registry := NewRegistry("")

	rps := getEnvFloat("EMBEDDING_RPS", 0)

	for _, backend := range backends {
		e, err := newForBackend(ctx, backend)
		if err != nil {
			return nil, err
		}
		if rps > 0 {
			// Burst of twice the sustained rate absorbs ingestion batches
			// without starving interactive queries.
			e = WrapRateLimited(e, rps, int(rps*2)+1)
		}
		registry.Register(e)
		if backend == activeBackend {
			registry.activeTag = e.Tag()
		}
	}

	if registry.activeTag == "" {
		return nil, fmt.Errorf("embedder: active backend %q is not in EMBEDDING_PROVIDERS=%q", active, list)
	}

	return registry, nil
}

// newForBackend constructs the adapter for one backend from its env vars.
func newForBackend(ctx context.Context, backend Backend) (rag.Embedder, error) {
	dims := getEnvInt("EMBEDDING_DIMENSIONS", 0)

	switch backend {
	case BackendOllama:
		return NewOllamaEmbedder(&OllamaConfig{
			Host:       getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model:      getEnvOrDefault("OLLAMA_EMBEDDING_MODEL", defaultOllamaModel),
			Dimensions: dims,
		}), nil

	case BackendOpenAI:
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("OPENAI_EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
		}), nil

	case BackendAzure:
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := os.Getenv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      getEnvOrDefault("OPENAI_EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	case BackendGemini:
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     apiKey,
			Model:      getEnvOrDefault("GEMINI_EMBEDDING_MODEL", defaultGeminiModel),
			Dimensions: dims,
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure, gemini", backend)
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float64 value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
