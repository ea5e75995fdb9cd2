package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/54b3r/docchat-go/internal/rag"
)

// seedChunk builds a cached chunk in conversation conv-1/owner-1.
func seedChunk(id, fileID, tag string, embedding []float32) rag.Chunk {
	return rag.Chunk{
		ID:             id,
		FileID:         fileID,
		ConversationID: "conv-1",
		OwnerID:        "owner-1",
		Text:           "text " + id,
		Embedding:      embedding,
		ModelTag:       tag,
		Filename:       fileID + ".txt",
	}
}

func Test_MemoryStore_QueryRanksByCosine(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(16, time.Minute)
	ctx := context.Background()

	err := s.Upsert(ctx, []rag.Chunk{
		seedChunk("c1", "f1", "t", []float32{1, 0}),   // identical direction
		seedChunk("c2", "f1", "t", []float32{1, 1}),   // 45 degrees off
		seedChunk("c3", "f1", "t", []float32{-1, 0}),  // opposite
		seedChunk("c4", "f1", "t", []float32{0, 0, 1}), // wrong length, skipped
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.Query(ctx, []float32{1, 0}, 10, rag.Filter{
		ConversationID: "conv-1", OwnerID: "owner-1", ModelTag: "t",
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (length-mismatched entry skipped)", len(results))
	}
	if results[0].ID != "c1" || results[1].ID != "c2" || results[2].ID != "c3" {
		t.Errorf("ranking = %s, %s, %s", results[0].ID, results[1].ID, results[2].ID)
	}
	if results[0].Score <= results[1].Score || results[1].Score <= results[2].Score {
		t.Errorf("scores not strictly descending: %v, %v, %v",
			results[0].Score, results[1].Score, results[2].Score)
	}
}

func Test_MemoryStore_FilterScoping(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(16, time.Minute)
	ctx := context.Background()

	other := seedChunk("c-other", "f9", "t", []float32{1, 0})
	other.ConversationID = "conv-other"

	foreignTag := seedChunk("c-tag", "f1", "other-tag", []float32{1, 0})

	if err := s.Upsert(ctx, []rag.Chunk{
		seedChunk("c1", "f1", "t", []float32{1, 0}),
		seedChunk("c2", "f2", "t", []float32{1, 0}),
		other,
		foreignTag,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Tag and conversation scoping.
	results, err := s.Query(ctx, []float32{1, 0}, 10, rag.Filter{
		ConversationID: "conv-1", OwnerID: "owner-1", ModelTag: "t",
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (foreign conversation and tag excluded)", len(results))
	}

	// File ID restriction.
	results, err = s.Query(ctx, []float32{1, 0}, 10, rag.Filter{
		ConversationID: "conv-1", OwnerID: "owner-1", ModelTag: "t", FileIDs: []string{"f2"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].FileID != "f2" {
		t.Errorf("results = %v, want only f2", results)
	}
}

func Test_MemoryStore_DeleteFile(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(16, time.Minute)
	ctx := context.Background()

	if err := s.Upsert(ctx, []rag.Chunk{
		seedChunk("c1", "f1", "t", []float32{1, 0}),
		seedChunk("c2", "f1", "t", []float32{0, 1}),
		seedChunk("c3", "f2", "t", []float32{1, 1}),
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := s.DeleteFile(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	results, err := s.FetchAll(ctx, rag.Filter{
		ConversationID: "conv-1", OwnerID: "owner-1",
	}, 10)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(results) != 1 || results[0].FileID != "f2" {
		t.Errorf("after delete: %v, want only f2", results)
	}
}

func Test_CosineSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := cosineSimilarity(tc.a, tc.b)
			if diff := got - tc.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("cosineSimilarity = %v, want %v", got, tc.want)
			}
		})
	}
}
