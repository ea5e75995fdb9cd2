package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/docchat-go/internal/assemble"
	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/filestore"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/retrieval"
	"github.com/54b3r/docchat-go/internal/vectorstore"
)

// buildRouter constructs the vector store router over every configured
// backend. Qdrant is always active; pgvector joins when PGVECTOR_DSN is set;
// the in-memory cache joins when MEMORY_CACHE_CAPACITY is positive. The
// returned close function shuts down all backends.
func buildRouter(ctx context.Context, log *slog.Logger) (*vectorstore.Router, func(), error) {
	var backends []rag.VectorBackend

	qs, err := vectorstore.NewQdrantStore(&vectorstore.QdrantConfig{
		Host:             getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:             getEnvInt("QDRANT_PORT", 6334),
		CollectionPrefix: getEnvOrDefault("QDRANT_COLLECTION_PREFIX", "docchat"),
		APIKey:           os.Getenv("QDRANT_API_KEY"),
		UseTLS:           os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	backends = append(backends, qs)

	if dsn := os.Getenv("PGVECTOR_DSN"); dsn != "" {
		pg, err := vectorstore.OpenPGVector(ctx, dsn)
		if err != nil {
			_ = qs.Close()
			return nil, nil, fmt.Errorf("failed to connect to pgvector: %w", err)
		}
		backends = append(backends, pg)
	}

	if capacity := getEnvInt("MEMORY_CACHE_CAPACITY", 0); capacity > 0 {
		ttl := vectorstore.DefaultMemoryTTL
		if v := os.Getenv("MEMORY_CACHE_TTL"); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				log.Warn("invalid MEMORY_CACHE_TTL, using default", slog.String("value", v))
			} else {
				ttl = parsed
			}
		}
		backends = append(backends, vectorstore.NewMemoryStore(capacity, ttl))
	}

	router, err := vectorstore.NewRouter(backends, 0)
	if err != nil {
		for _, b := range backends {
			_ = b.Close()
		}
		return nil, nil, err
	}
	log.Info("vector store router ready", slog.Any("backends", router.Backends()))

	return router, func() { _ = router.Close() }, nil
}

// openFileStore opens the attachment metadata store at DOCCHAT_DB, or the
// default ~/.docchat/files.db.
func openFileStore() (*filestore.Store, error) {
	path := os.Getenv("DOCCHAT_DB")
	if path == "" {
		var err error
		path, err = filestore.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return filestore.Open(path)
}

// buildEngine wires the retrieval engine: embedder registry, vector router,
// and context assembler, all resolved from the environment.
func buildEngine(ctx context.Context, log *slog.Logger) (*retrieval.Engine, *embedder.Registry, func(), error) {
	registry, err := embedder.NewRegistryFromEnv(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise embedders: %w", err)
	}

	router, closeRouter, err := buildRouter(ctx, log)
	if err != nil {
		return nil, nil, nil, err
	}

	engine, err := retrieval.NewEngine(&retrieval.Config{
		Store:             router,
		Embedders:         registry,
		Assembler:         assemble.New(getEnvInt("RETRIEVAL_CONTEXT_BUDGET", 0)),
		FullFileMaxChunks: getEnvInt("RETRIEVAL_FULL_FILE_MAX_CHUNKS", 0),
	})
	if err != nil {
		closeRouter()
		return nil, nil, nil, err
	}

	return engine, registry, closeRouter, nil
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

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
