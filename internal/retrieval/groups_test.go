package retrieval

import (
	"testing"

	"github.com/54b3r/docchat-go/internal/rag"
)

func Test_ResolveGroups_PartitionsByTag(t *testing.T) {
	t.Parallel()

	files := []rag.FileRef{
		{ID: "f1", ModelTag: "ollama:nomic-embed-text", Dimension: 768, Status: rag.StatusCompleted},
		{ID: "f2", ModelTag: "openai:text-embedding-3-small", Dimension: 1536, Status: rag.StatusCompleted},
		{ID: "f3", ModelTag: "ollama:nomic-embed-text", Dimension: 768, Status: rag.StatusCompleted},
	}

	groups := ResolveGroups(files)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}

	// Groups appear in first-occurrence order, files keep input order.
	if groups[0].ModelTag != "ollama:nomic-embed-text" || groups[1].ModelTag != "openai:text-embedding-3-small" {
		t.Errorf("group order = %s, %s", groups[0].ModelTag, groups[1].ModelTag)
	}
	if ids := groups[0].FileIDs(); len(ids) != 2 || ids[0] != "f1" || ids[1] != "f3" {
		t.Errorf("first group file IDs = %v, want [f1 f3]", ids)
	}
	if groups[0].Dimension != 768 || groups[1].Dimension != 1536 {
		t.Errorf("dimensions = %d, %d", groups[0].Dimension, groups[1].Dimension)
	}
}

func Test_ResolveGroups_SkipsUnfinishedFiles(t *testing.T) {
	t.Parallel()

	files := []rag.FileRef{
		{ID: "f1", ModelTag: "ollama:nomic-embed-text", Status: rag.StatusPending},
		{ID: "f2", ModelTag: "ollama:nomic-embed-text", Status: rag.StatusProcessing},
		{ID: "f3", ModelTag: "ollama:nomic-embed-text", Status: rag.StatusFailed},
		{ID: "f4", ModelTag: "ollama:nomic-embed-text", Status: rag.StatusCompleted},
	}

	groups := ResolveGroups(files)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if ids := groups[0].FileIDs(); len(ids) != 1 || ids[0] != "f4" {
		t.Errorf("file IDs = %v, want [f4]", ids)
	}
}

func Test_ResolveGroups_Empty(t *testing.T) {
	t.Parallel()

	if groups := ResolveGroups(nil); len(groups) != 0 {
		t.Errorf("ResolveGroups(nil) = %v, want none", groups)
	}
}

func Test_ResolveGroups_Deterministic(t *testing.T) {
	t.Parallel()

	files := []rag.FileRef{
		{ID: "f1", ModelTag: "b:m", Status: rag.StatusCompleted},
		{ID: "f2", ModelTag: "a:m", Status: rag.StatusCompleted},
		{ID: "f3", ModelTag: "b:m", Status: rag.StatusCompleted},
	}

	first := ResolveGroups(files)
	for range 10 {
		again := ResolveGroups(files)
		if len(again) != len(first) {
			t.Fatalf("group count changed between runs")
		}
		for i := range again {
			if again[i].ModelTag != first[i].ModelTag {
				t.Fatalf("group order changed between runs: %v vs %v", again, first)
			}
		}
	}
}
