package embedder

import (
	"context"
	"strings"
	"testing"
)

// stubEmbedder is a registry entry that never calls any backend.
type stubEmbedder struct {
	tag  string
	dims int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dims)
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }
func (s *stubEmbedder) Tag() string     { return s.tag }

func Test_Registry_ResolveAndActive(t *testing.T) {
	t.Parallel()

	r := NewRegistry("ollama:nomic-embed-text")
	r.Register(&stubEmbedder{tag: "ollama:nomic-embed-text", dims: 768})
	r.Register(&stubEmbedder{tag: "openai:text-embedding-3-small", dims: 1536})

	e, err := r.Resolve("openai:text-embedding-3-small")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.Dimensions() != 1536 {
		t.Errorf("dims = %d, want 1536", e.Dimensions())
	}

	active, err := r.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Tag() != "ollama:nomic-embed-text" {
		t.Errorf("active tag = %s", active.Tag())
	}
	if r.ActiveTag() != "ollama:nomic-embed-text" {
		t.Errorf("ActiveTag = %s", r.ActiveTag())
	}
}

func Test_Registry_ResolveUnknownTag(t *testing.T) {
	t.Parallel()

	r := NewRegistry("ollama:nomic-embed-text")
	if _, err := r.Resolve("gemini:text-embedding-004"); err == nil {
		t.Fatal("Resolve of unregistered tag succeeded")
	} else if !strings.Contains(err.Error(), "gemini:text-embedding-004") {
		t.Errorf("error %q does not name the tag", err)
	}
}

func Test_Registry_RegisterReplaces(t *testing.T) {
	t.Parallel()

	r := NewRegistry("t")
	r.Register(&stubEmbedder{tag: "t", dims: 4})
	r.Register(&stubEmbedder{tag: "t", dims: 8})

	e, err := r.Resolve("t")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.Dimensions() != 8 {
		t.Errorf("dims = %d, want the later registration", e.Dimensions())
	}
}

func Test_Registry_TagsSorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry("b")
	r.Register(&stubEmbedder{tag: "b", dims: 1})
	r.Register(&stubEmbedder{tag: "a", dims: 1})
	r.Register(&stubEmbedder{tag: "c", dims: 1})

	got := r.Tags()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Tags() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tags()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func Test_NewRegistryFromEnv_OllamaDefault(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("EMBEDDING_PROVIDERS", "")
	t.Setenv("OLLAMA_EMBEDDING_MODEL", "")
	t.Setenv("EMBEDDING_RPS", "")

	r, err := NewRegistryFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewRegistryFromEnv: %v", err)
	}
	if r.ActiveTag() != "ollama:nomic-embed-text" {
		t.Errorf("active tag = %s", r.ActiveTag())
	}
	if _, err := r.Active(); err != nil {
		t.Errorf("Active: %v", err)
	}
}

func Test_NewRegistryFromEnv_MultipleProviders(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_PROVIDERS", "ollama, openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_EMBEDDING_MODEL", "")
	t.Setenv("OLLAMA_EMBEDDING_MODEL", "")
	t.Setenv("EMBEDDING_RPS", "")

	r, err := NewRegistryFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewRegistryFromEnv: %v", err)
	}
	if r.ActiveTag() != "openai:text-embedding-3-small" {
		t.Errorf("active tag = %s", r.ActiveTag())
	}
	tags := r.Tags()
	if len(tags) != 2 {
		t.Fatalf("Tags() = %v, want two backends registered", tags)
	}
	if _, err := r.Resolve("ollama:nomic-embed-text"); err != nil {
		t.Errorf("old-tag resolve: %v", err)
	}
}

func Test_NewRegistryFromEnv_ActiveMissingFromList(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_PROVIDERS", "ollama")
	t.Setenv("EMBEDDING_RPS", "")

	if _, err := NewRegistryFromEnv(context.Background()); err == nil {
		t.Fatal("active backend absent from EMBEDDING_PROVIDERS must fail")
	}
}
