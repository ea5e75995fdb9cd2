package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/docchat-go/internal/rag"
)

// fakeBackend is a scriptable rag.VectorBackend.
type fakeBackend struct {
	name         string
	queryResults []rag.Result
	queryErr     error
	fetchResults []rag.Result
	upsertErr    error
	deleteErr    error

	upserts []rag.Chunk
	deleted []string
	closed  bool
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Upsert(_ context.Context, chunks []rag.Chunk) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, chunks...)
	return nil
}

func (f *fakeBackend) Query(_ context.Context, _ []float32, _ int, _ rag.Filter) ([]rag.Result, error) {
	return f.queryResults, f.queryErr
}

func (f *fakeBackend) FetchAll(_ context.Context, _ rag.Filter, _ int) ([]rag.Result, error) {
	return f.fetchResults, nil
}

func (f *fakeBackend) DeleteFile(_ context.Context, fileID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, fileID)
	return nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

// res builds a result with distinct text so dedupe keys differ.
func res(text string, score float32) rag.Result {
	return rag.Result{
		Chunk: rag.Chunk{Filename: "f.txt", Index: 0, Text: text},
		Score: score,
	}
}

func Test_Router_RequiresBackends(t *testing.T) {
	t.Parallel()

	if _, err := NewRouter(nil, 0); err == nil {
		t.Error("NewRouter(nil) succeeded, want error")
	}
}

func Test_Router_Query_MergesAndDedupes(t *testing.T) {
	t.Parallel()

	// "shared" lives in both backends (same content hash); each backend also
	// holds a unique result.
	a := &fakeBackend{name: "a", queryResults: []rag.Result{res("shared", 0.9), res("only-a", 0.7)}}
	b := &fakeBackend{name: "b", queryResults: []rag.Result{res("shared", 0.8), res("only-b", 0.6)}}

	router, err := NewRouter([]rag.VectorBackend{a, b}, 0)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	results, err := router.Query(context.Background(), []float32{1}, 10, rag.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 after dedupe", len(results))
	}
	if results[0].Text != "shared" || results[0].Score != 0.9 {
		t.Errorf("results[0] = %q/%v, want the higher-scored duplicate", results[0].Text, results[0].Score)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Score < results[i].Score {
			t.Errorf("results out of score order: %v", results)
		}
	}
}

func Test_Router_Query_TruncatesToK(t *testing.T) {
	t.Parallel()

	a := &fakeBackend{name: "a", queryResults: []rag.Result{
		res("one", 0.9), res("two", 0.8), res("three", 0.7),
	}}
	router, err := NewRouter([]rag.VectorBackend{a}, 0)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	results, err := router.Query(context.Background(), []float32{1}, 2, rag.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func Test_Router_Query_FailingBackendExcluded(t *testing.T) {
	t.Parallel()

	healthy := &fakeBackend{name: "healthy", queryResults: []rag.Result{res("ok", 0.9)}}
	broken := &fakeBackend{name: "broken", queryErr: errors.New("connection refused")}

	router, err := NewRouter([]rag.VectorBackend{broken, healthy}, 0)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	results, err := router.Query(context.Background(), []float32{1}, 10, rag.Filter{})
	if err != nil {
		t.Fatalf("a failing backend must not fail the router call: %v", err)
	}
	if len(results) != 1 || results[0].Text != "ok" {
		t.Errorf("results = %v, want the healthy backend's result", results)
	}
}

func Test_Router_Upsert_WritesAllBackendsAndPropagatesErrors(t *testing.T) {
	t.Parallel()

	a := &fakeBackend{name: "a"}
	b := &fakeBackend{name: "b"}
	router, err := NewRouter([]rag.VectorBackend{a, b}, 0)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	chunks := []rag.Chunk{{ID: "c1", Text: "hello"}}
	if err := router.Upsert(context.Background(), chunks); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(a.upserts) != 1 || len(b.upserts) != 1 {
		t.Errorf("upserts reached %d/%d backends, want both", len(a.upserts), len(b.upserts))
	}

	// A write failure must surface, unlike read failures.
	b.upsertErr = errors.New("disk full")
	if err := router.Upsert(context.Background(), chunks); err == nil {
		t.Error("Upsert with failing backend succeeded, want error")
	}
}

func Test_Router_DeleteFile_Cascades(t *testing.T) {
	t.Parallel()

	a := &fakeBackend{name: "a"}
	b := &fakeBackend{name: "b"}
	router, err := NewRouter([]rag.VectorBackend{a, b}, 0)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	if err := router.DeleteFile(context.Background(), "f1"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if len(a.deleted) != 1 || len(b.deleted) != 1 {
		t.Errorf("delete reached %d/%d backends, want both", len(a.deleted), len(b.deleted))
	}
}

func Test_Router_Close_ClosesAllBackends(t *testing.T) {
	t.Parallel()

	a := &fakeBackend{name: "a"}
	b := &fakeBackend{name: "b"}
	router, err := NewRouter([]rag.VectorBackend{a, b}, 0)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	if err := router.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Errorf("closed = %v/%v, want both", a.closed, b.closed)
	}
}
