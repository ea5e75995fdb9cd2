package embedder

import (
	"context"
	"testing"
	"time"
)

func Test_WrapRateLimited_PassthroughWhenUnlimited(t *testing.T) {
	t.Parallel()

	inner := &stubEmbedder{tag: "t", dims: 4}
	if got := WrapRateLimited(inner, 0, 1); got != inner {
		t.Error("rps <= 0 must return the embedder unchanged")
	}
}

func Test_WrapRateLimited_DelegatesIdentity(t *testing.T) {
	t.Parallel()

	wrapped := WrapRateLimited(&stubEmbedder{tag: "ollama:nomic-embed-text", dims: 768}, 100, 10)
	if wrapped.Tag() != "ollama:nomic-embed-text" {
		t.Errorf("Tag = %s", wrapped.Tag())
	}
	if wrapped.Dimensions() != 768 {
		t.Errorf("Dimensions = %d", wrapped.Dimensions())
	}

	vecs, err := wrapped.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 768 {
		t.Errorf("Embed returned %d vectors of len %d", len(vecs), len(vecs[0]))
	}
}

func Test_WrapRateLimited_HonoursCancellation(t *testing.T) {
	t.Parallel()

	// Burst 1, tiny rate: the second call must wait, and a cancelled context
	// aborts the wait instead of blocking.
	wrapped := WrapRateLimited(&stubEmbedder{tag: "t", dims: 4}, 0.001, 1)

	if _, err := wrapped.Embed(context.Background(), []string{"warm"}); err != nil {
		t.Fatalf("first Embed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := wrapped.Embed(ctx, []string{"blocked"}); err == nil {
		t.Fatal("Embed must fail when the context expires before a token is available")
	}
}
