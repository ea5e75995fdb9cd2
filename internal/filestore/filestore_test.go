package filestore

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/docchat-go/internal/rag"
)

// openTestStore opens an in-memory Store for use in tests.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newRef builds an attachment ref for conversation conv-1.
func newRef(id string) rag.FileRef {
	return rag.FileRef{
		ID:             id,
		ConversationID: "conv-1",
		OwnerID:        "owner-1",
		Filename:       id + ".txt",
		Path:           "/tmp/" + id + ".txt",
	}
}

func Test_Store_CreateAndGet(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newRef("f1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	ref, err := s.Get(ctx, "f1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ref.Status != rag.StatusPending {
		t.Errorf("status = %s, want pending", ref.Status)
	}
	if ref.Filename != "f1.txt" || ref.ConversationID != "conv-1" {
		t.Errorf("ref = %+v", ref)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get missing: %v, want ErrNotFound", err)
	}
}

func Test_Store_Lifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newRef("f1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := s.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.ID != "f1" || claimed.Status != rag.StatusProcessing {
		t.Errorf("claimed = %+v, want f1/processing", claimed)
	}

	// Nothing else pending.
	if _, err := s.ClaimPending(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("second claim: %v, want ErrNotFound", err)
	}

	if err := s.MarkCompleted(ctx, "f1", "ollama:nomic-embed-text", 768, 12); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	ref, err := s.Get(ctx, "f1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ref.Status != rag.StatusCompleted || ref.ModelTag != "ollama:nomic-embed-text" ||
		ref.Dimension != 768 || ref.TotalChunks != 12 {
		t.Errorf("completed ref = %+v", ref)
	}
}

func Test_Store_ClaimOldestFirst(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"f1", "f2", "f3"} {
		if err := s.Create(ctx, newRef(id)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	// Same created_at second is possible; ID order breaks the tie.
	for _, want := range []string{"f1", "f2", "f3"} {
		claimed, err := s.ClaimPending(ctx)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if claimed.ID != want {
			t.Errorf("claimed %s, want %s", claimed.ID, want)
		}
	}
}

func Test_Store_MarkFailedRecordsReason(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newRef("f1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.ClaimPending(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.MarkFailed(ctx, "f1", "file contains no text"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	ref, err := s.Get(ctx, "f1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ref.Status != rag.StatusFailed {
		t.Errorf("status = %s, want failed", ref.Status)
	}
	reason, err := s.FailureReason(ctx, "f1")
	if err != nil {
		t.Fatalf("failure reason: %v", err)
	}
	if reason != "file contains no text" {
		t.Errorf("reason = %q", reason)
	}
}

func Test_Store_ListByConversation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	other := newRef("f-other")
	other.ConversationID = "conv-2"

	for _, ref := range []rag.FileRef{newRef("f1"), newRef("f2"), other} {
		if err := s.Create(ctx, ref); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	refs, err := s.ListByConversation(ctx, "conv-1", "owner-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2", len(refs))
	}
	if refs[0].ID != "f1" || refs[1].ID != "f2" {
		t.Errorf("order = %s, %s, want f1, f2", refs[0].ID, refs[1].ID)
	}

	refs, err = s.ListByConversation(ctx, "conv-1", "someone-else")
	if err != nil {
		t.Fatalf("list other owner: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("foreign owner sees %d refs, want 0", len(refs))
	}
}

func Test_Store_Delete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newRef("f1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, "f1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v, want ErrNotFound", err)
	}
}
