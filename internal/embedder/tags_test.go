package embedder

import "testing"

func Test_Tag_RoundTrip(t *testing.T) {
	t.Parallel()

	tag := Tag(BackendOllama, "nomic-embed-text")
	if tag != "ollama:nomic-embed-text" {
		t.Fatalf("Tag = %s", tag)
	}

	backend, model, err := ParseTag(tag)
	if err != nil {
		t.Fatalf("ParseTag: %v", err)
	}
	if backend != BackendOllama || model != "nomic-embed-text" {
		t.Errorf("ParseTag = %s/%s", backend, model)
	}
}

func Test_ParseTag_Malformed(t *testing.T) {
	t.Parallel()

	for _, tag := range []string{"", "ollama", ":model", "backend:", ":"} {
		if _, _, err := ParseTag(tag); err == nil {
			t.Errorf("ParseTag(%q) succeeded", tag)
		}
	}
}

func Test_ParseTag_ModelNameWithColon(t *testing.T) {
	t.Parallel()

	// Ollama model names can carry a version suffix after a colon.
	backend, model, err := ParseTag("ollama:nomic-embed-text:latest")
	if err != nil {
		t.Fatalf("ParseTag: %v", err)
	}
	if backend != BackendOllama || model != "nomic-embed-text:latest" {
		t.Errorf("ParseTag = %s/%s", backend, model)
	}
}

func Test_DefaultDimensions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		backend Backend
		want    int
	}{
		{BackendOllama, 768},
		{BackendOpenAI, 1536},
		{BackendAzure, 1536},
		{BackendGemini, 768},
	}
	for _, tc := range cases {
		if got := DefaultDimensions(tc.backend); got != tc.want {
			t.Errorf("DefaultDimensions(%s) = %d, want %d", tc.backend, got, tc.want)
		}
	}
}

func Test_DefaultModel(t *testing.T) {
	t.Parallel()

	if got := DefaultModel(BackendOllama); got != "nomic-embed-text" {
		t.Errorf("ollama default = %s", got)
	}
	if got := DefaultModel(BackendGemini); got != "text-embedding-004" {
		t.Errorf("gemini default = %s", got)
	}
	if got := DefaultModel(BackendOpenAI); got != "text-embedding-3-small" {
		t.Errorf("openai default = %s", got)
	}
}
