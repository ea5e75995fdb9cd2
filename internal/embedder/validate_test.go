package embedder

import (
	"testing"

	"github.com/54b3r/docchat-go/internal/logging"
)

func Test_LooksLikeChatModel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		model string
		want  bool
	}{
		{"nomic-embed-text", false},
		{"text-embedding-3-small", false},
		{"text-embedding-004", false},
		{"mxbai-embed-large", false},
		{"gpt-4o", true},
		{"GPT-4o-mini", true},
		{"llama3.1:8b", true},
		{"mistral-7b-instruct", true},
		{"claude-sonnet", true},
		{"o1-preview", true},
		{"deepseek-r1", true},
	}
	for _, tc := range cases {
		if got := looksLikeChatModel(tc.model); got != tc.want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", tc.model, got, tc.want)
		}
	}
}

func Test_ValidateEnv_OllamaNeedsNoCredentials(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_PROVIDERS", "")
	t.Setenv("OLLAMA_EMBEDDING_MODEL", "")

	if err := ValidateEnv(logging.Discard()); err != nil {
		t.Fatalf("ValidateEnv: %v", err)
	}
}

func Test_ValidateEnv_OpenAIWithoutKey(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_PROVIDERS", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EMBEDDING_API_KEY", "")

	if err := ValidateEnv(logging.Discard()); err == nil {
		t.Fatal("openai without an API key must fail pre-flight")
	}
}

func Test_ValidateEnv_AzureNeedsEndpoint(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "azure")
	t.Setenv("EMBEDDING_PROVIDERS", "")
	t.Setenv("AZURE_OPENAI_API_KEY", "key")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	t.Setenv("EMBEDDING_ENDPOINT", "")

	if err := ValidateEnv(logging.Discard()); err == nil {
		t.Fatal("azure without an endpoint must fail pre-flight")
	}
}

func Test_ValidateEnv_UnknownBackend(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_PROVIDERS", "ollama,voodoo")

	if err := ValidateEnv(logging.Discard()); err == nil {
		t.Fatal("unknown backend in EMBEDDING_PROVIDERS must fail")
	}
}

func Test_ValidateEnv_ActiveNotInList(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "gemini")
	t.Setenv("EMBEDDING_PROVIDERS", "ollama")

	if err := ValidateEnv(logging.Discard()); err == nil {
		t.Fatal("active provider missing from list must fail")
	}
}

func Test_ValidateEnv_ChatModelWarnsButPasses(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_PROVIDERS", "")
	t.Setenv("OLLAMA_EMBEDDING_MODEL", "llama3.1:8b")

	// A chat model configured for embedding is a warning, not an error.
	if err := ValidateEnv(logging.Discard()); err != nil {
		t.Fatalf("ValidateEnv: %v", err)
	}
}
