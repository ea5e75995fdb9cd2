package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If a configured embedding model
// matches any of these, a warning is emitted so the operator knows they may
// have misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// modelEnvKeys maps each backend to the env var naming its embedding model.
var modelEnvKeys = map[Backend]string{
	BackendOllama: "OLLAMA_EMBEDDING_MODEL",
	BackendOpenAI: "OPENAI_EMBEDDING_MODEL",
	BackendAzure:  "OPENAI_EMBEDDING_MODEL",
	BackendGemini: "GEMINI_EMBEDDING_MODEL",
}

// ValidateEnv checks that the embedding configuration is coherent before any
// store or worker is constructed. It returns an error for configurations that
// are clearly broken (e.g. openai backend with no API key) and logs a warning
// when a configured model name looks like a chat model.
//
// This is a pre-flight check — call it at startup so operators get a clear
// error instead of a cryptic failure during the first embed call.
func ValidateEnv(log *slog.Logger) error {
	active := getEnvOrDefault("EMBEDDING_PROVIDER", string(BackendOllama))
	list := getEnvOrDefault("EMBEDDING_PROVIDERS", active)

	found := false
	for _, raw := range strings.Split(list, ",") {
		backend := Backend(strings.TrimSpace(strings.ToLower(raw)))
		if backend == "" {
			continue
		}
		if string(backend) == active {
			found = true
		}

		switch backend {
		case BackendOllama:
			// Local backend, no credentials required.

		case BackendOpenAI:
			if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") == "" {
				return fmt.Errorf("embedder: openai is in EMBEDDING_PROVIDERS but no API key found — set OPENAI_API_KEY or EMBEDDING_API_KEY")
			}

		case BackendAzure:
			if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("AZURE_OPENAI_API_KEY") == "" {
				return fmt.Errorf("embedder: azure is in EMBEDDING_PROVIDERS but no API key found — set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
			}
			if os.Getenv("EMBEDDING_ENDPOINT") == "" && os.Getenv("AZURE_OPENAI_ENDPOINT") == "" {
				return fmt.Errorf("embedder: azure is in EMBEDDING_PROVIDERS but no endpoint found — set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
			}

		case BackendGemini:
			if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
				return fmt.Errorf("embedder: gemini is in EMBEDDING_PROVIDERS but no API key found — set GOOGLE_API_KEY or EMBEDDING_API_KEY")
			}

		default:
			return fmt.Errorf("embedder: unknown backend %q in EMBEDDING_PROVIDERS — valid values: ollama, openai, azure, gemini", backend)
		}

		if key, ok := modelEnvKeys[backend]; ok {
			if model := os.Getenv(key); model != "" && looksLikeChatModel(model) {
				log.Warn("embedder: configured model looks like a chat model, not an embedding model — "+
					"this will likely produce poor or broken embeddings",
					slog.String("backend", string(backend)),
					slog.String("model", model),
					slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
				)
			}
		}
	}

	if !found {
		return fmt.Errorf("embedder: EMBEDDING_PROVIDER=%q is not listed in EMBEDDING_PROVIDERS=%q", active, list)
	}

	return nil
}
