// Package config provides YAML-based configuration for docchat.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. DOCCHAT_CONFIG environment variable
//  3. ~/.docchat/config.yaml
//  4. ./docchat.yaml
//
// If no file is found the system runs entirely from env vars (backwards compatible).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding providers for retrieval.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// PGVector configures the Postgres/pgvector vector store connection.
	PGVector PGVectorConfig `yaml:"pgvector"`

	// Cache configures the in-memory vector cache.
	Cache CacheConfig `yaml:"cache"`

	// Retrieval configures the retrieval orchestrator defaults.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Ingestion configures the background ingestion worker.
	Ingestion IngestionConfig `yaml:"ingestion"`

	// Files configures the attachment metadata store.
	Files FilesConfig `yaml:"files"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, bedrock, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// FallbackModels is the static model list reported when the backend
	// cannot be queried for available models.
	FallbackModels []string `yaml:"fallback_models"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Bedrock holds AWS Bedrock-specific settings.
	Bedrock BedrockConfig `yaml:"bedrock"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama chat model name.
	Model string `yaml:"model"`
	// EmbeddingModel is the Ollama embedding model name.
	EmbeddingModel string `yaml:"embedding_model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI chat model name.
	Model string `yaml:"model"`
	// EmbeddingModel is the OpenAI embedding model name.
	EmbeddingModel string `yaml:"embedding_model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// BedrockConfig holds AWS Bedrock provider settings.
type BedrockConfig struct {
	// Region is the AWS region for Bedrock.
	Region string `yaml:"region"`
	// ModelID is the Bedrock model identifier.
	ModelID string `yaml:"model_id"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini chat model name.
	Model string `yaml:"model"`
	// EmbeddingModel is the Gemini embedding model name.
	EmbeddingModel string `yaml:"embedding_model"`
}

// EmbeddingConfig holds embedding settings for ingestion and retrieval.
type EmbeddingConfig struct {
	// Provider selects the active embedding backend for new ingestion
	// (ollama, openai, azure, gemini).
	Provider string `yaml:"provider"`
	// Providers lists every backend to register adapters for. Attachments
	// embedded under a previously active backend stay retrievable as long
	// as their backend remains in this list.
	Providers []string `yaml:"providers"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// RPS rate-limits embedding calls (requests per second, 0 = unlimited).
	RPS float64 `yaml:"rps"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// CollectionPrefix prefixes the per-model collection names.
	CollectionPrefix string `yaml:"collection_prefix"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// PGVectorConfig holds Postgres/pgvector vector store settings.
type PGVectorConfig struct {
	// DSN is the Postgres connection string. Empty disables the backend.
	DSN string `yaml:"dsn"`
}

// CacheConfig holds in-memory vector cache settings.
type CacheConfig struct {
	// Capacity is the maximum number of chunks held in memory.
	Capacity int `yaml:"capacity"`
	// TTL is the per-chunk expiry (Go duration string, e.g. "30m").
	TTL string `yaml:"ttl"`
}

// RetrievalConfig holds retrieval orchestrator defaults.
type RetrievalConfig struct {
	// TopK is the default result count per query.
	TopK int `yaml:"top_k"`
	// FetchK is the default oversampled neighbour count per group.
	FetchK int `yaml:"fetch_k"`
	// Mode is the default retrieval mode: hybrid or full_file.
	Mode string `yaml:"mode"`
	// ScoreThreshold drops hybrid results scoring below it (0 = off).
	ScoreThreshold float32 `yaml:"score_threshold"`
	// ContextBudget caps the assembled context in characters.
	ContextBudget int `yaml:"context_budget"`
	// FullFileMaxChunks caps the chunks per group in full-file mode.
	FullFileMaxChunks int `yaml:"full_file_max_chunks"`
}

// IngestionConfig holds background worker settings.
type IngestionConfig struct {
	// ChunkSize is the maximum characters per chunk.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the characters shared between consecutive chunks.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// PollInterval is how often the worker checks for pending files
	// (Go duration string, e.g. "2s").
	PollInterval string `yaml:"poll_interval"`
	// MetricsAddr is the bind address for the worker's metrics endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// FilesConfig holds attachment metadata store settings.
type FilesConfig struct {
	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"MODEL_FALLBACK_MODELS", func(c *Config) string { return strings.Join(c.Model.FallbackModels, ",") }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OLLAMA_EMBEDDING_MODEL", func(c *Config) string { return c.Model.Ollama.EmbeddingModel }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_EMBEDDING_MODEL", func(c *Config) string { return c.Model.OpenAI.EmbeddingModel }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"GEMINI_EMBEDDING_MODEL", func(c *Config) string { return c.Model.Gemini.EmbeddingModel }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_PROVIDERS", func(c *Config) string { return strings.Join(c.Embedding.Providers, ",") }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_RPS", func(c *Config) string { return float64Str(c.Embedding.RPS) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION_PREFIX", func(c *Config) string { return c.Qdrant.CollectionPrefix }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"PGVECTOR_DSN", func(c *Config) string { return c.PGVector.DSN }},
	{"MEMORY_CACHE_CAPACITY", func(c *Config) string { return intStr(c.Cache.Capacity) }},
	{"MEMORY_CACHE_TTL", func(c *Config) string { return c.Cache.TTL }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_FETCH_K", func(c *Config) string { return intStr(c.Retrieval.FetchK) }},
	{"RETRIEVAL_MODE", func(c *Config) string { return c.Retrieval.Mode }},
	{"RETRIEVAL_SCORE_THRESHOLD", func(c *Config) string { return float32Str(c.Retrieval.ScoreThreshold) }},
	{"RETRIEVAL_CONTEXT_BUDGET", func(c *Config) string { return intStr(c.Retrieval.ContextBudget) }},
	{"RETRIEVAL_FULL_FILE_MAX_CHUNKS", func(c *Config) string { return intStr(c.Retrieval.FullFileMaxChunks) }},
	{"INGEST_CHUNK_SIZE", func(c *Config) string { return intStr(c.Ingestion.ChunkSize) }},
	{"INGEST_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Ingestion.ChunkOverlap) }},
	{"INGEST_POLL_INTERVAL", func(c *Config) string { return c.Ingestion.PollInterval }},
	{"WORKER_METRICS_ADDR", func(c *Config) string { return c.Ingestion.MetricsAddr }},
	{"DOCCHAT_DB", func(c *Config) string { return c.Files.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("DOCCHAT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".docchat", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("docchat.yaml"); err == nil {
		return "docchat.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
