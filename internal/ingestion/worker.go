package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/54b3r/docchat-go/internal/filestore"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// defaultPollInterval is how often the worker checks for pending files.
	defaultPollInterval = 2 * time.Second

	// embedBatchSize caps the number of chunk texts sent to the embedder in
	// one call. Hosted embedding APIs reject oversized batches.
	embedBatchSize = 64
)

// EmbedderSource yields the embedder to stamp newly ingested chunks with.
// The active model is read per file, not per worker lifetime, so an
// operator switching the active embedding model mid-run affects the next
// claimed file rather than requiring a restart. The embedder.Registry
// satisfies it.
type EmbedderSource interface {
	Active() (rag.Embedder, error)
}

// Config holds the worker's dependencies and tuning.
type Config struct {
	// Files is the attachment metadata store. Required.
	Files *filestore.Store

	// Embedders yields the active embedding model. Required.
	Embedders EmbedderSource

	// Store receives the embedded chunks. Required.
	Store rag.VectorBackend

	// ChunkSize and ChunkOverlap configure the chunker. Zero values take
	// the chunker defaults.
	ChunkSize    int
	ChunkOverlap int

	// PollInterval is how often Run checks for pending files. Defaults to 2s.
	PollInterval time.Duration

	// Registerer receives the worker's Prometheus metrics.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Worker drains the pending-attachment queue: claim, chunk, embed, upsert,
// mark. A failed file is marked failed with its reason and the worker moves
// on; one bad attachment never stalls the queue.
type Worker struct {
	files     *filestore.Store
	embedders EmbedderSource
	store     rag.VectorBackend
	chunker   *Chunker
	interval  time.Duration
	metrics   *workerMetrics
}

// NewWorker constructs a Worker from the given config.
func NewWorker(cfg *Config) (*Worker, error) {
	if cfg == nil || cfg.Files == nil {
		return nil, fmt.Errorf("ingestion: file store must not be nil")
	}
	if cfg.Embedders == nil {
		return nil, fmt.Errorf("ingestion: embedder source must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("ingestion: vector store must not be nil")
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Worker{
		files:     cfg.Files,
		embedders: cfg.Embedders,
		store:     cfg.Store,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		interval:  interval,
		metrics:   newWorkerMetrics(reg),
	}, nil
}

// Run polls for pending attachments until the context is cancelled. Idle
// polls sleep for the configured interval; after processing a file the next
// claim happens immediately so a burst of uploads drains without waiting.
func (w *Worker) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("ingestion: worker started", slog.Duration("poll_interval", w.interval))

	for {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			log.Info("ingestion: worker stopped")
			return ctx.Err()
		case <-time.After(w.interval):
		}
	}
}

// RunOnce claims and processes at most one pending attachment. It reports
// whether a file was claimed. Processing failures are recorded on the file
// and do not surface as errors; only metadata-store failures do.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	ref, err := w.files.ClaimPending(ctx)
	if errors.Is(err, filestore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ingestion: claim: %w", err)
	}

	log := logging.FromContext(ctx)
	start := time.Now()

	total, err := w.process(ctx, ref)
	w.metrics.ingestDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		w.metrics.filesIngestedTotal.WithLabelValues("failed").Inc()
		log.Error("ingestion: file failed",
			slog.String("file_id", ref.ID),
			slog.String("filename", ref.Filename),
			slog.String("error", err.Error()),
		)
		if markErr := w.files.MarkFailed(ctx, ref.ID, err.Error()); markErr != nil {
			return true, fmt.Errorf("ingestion: mark failed: %w", markErr)
		}
		return true, nil
	}

	w.metrics.filesIngestedTotal.WithLabelValues("completed").Inc()
	w.metrics.chunksIngestedTotal.Add(float64(total))
	log.Info("ingestion: file completed",
		slog.String("file_id", ref.ID),
		slog.String("filename", ref.Filename),
		slog.Int("chunks", total),
	)
	return true, nil
}

// process runs the chunk → embed → upsert flow for one claimed file and
// records the outcome in the metadata store.
func (w *Worker) process(ctx context.Context, ref rag.FileRef) (int, error) {
	content, err := os.ReadFile(ref.Path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", ref.Path, err)
	}

	texts := w.chunker.Split(string(content))
	if len(texts) == 0 {
		return 0, fmt.Errorf("file %s contains no text", ref.Filename)
	}

	// The active model is stamped on every chunk; retrieval later groups
	// attachments by this tag so vectors from different models are never
	// compared against each other.
	emb, err := w.embedders.Active()
	if err != nil {
		return 0, fmt.Errorf("resolve active embedding model: %w", err)
	}
	tag := emb.Tag()
	dim := emb.Dimensions()

	chunks := make([]rag.Chunk, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := emb.Embed(ctx, texts[start:end])
		if err != nil {
			return 0, fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(vectors) != end-start {
			return 0, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), end-start)
		}

		for i, vec := range vectors {
			idx := start + i
			if len(vec) != dim {
				return 0, fmt.Errorf("chunk %d: embedding dimension %d, model %q expects %d", idx, len(vec), tag, dim)
			}
			chunks = append(chunks, rag.Chunk{
				ID:             rag.ChunkID(ref.ID, idx),
				FileID:         ref.ID,
				ConversationID: ref.ConversationID,
				OwnerID:        ref.OwnerID,
				Text:           texts[idx],
				Embedding:      vec,
				ModelTag:       tag,
				Dimension:      dim,
				Index:          idx,
				TotalChunks:    len(texts),
				Filename:       ref.Filename,
			})
		}
	}

	if err := w.store.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}

	if err := w.files.MarkCompleted(ctx, ref.ID, tag, dim, len(texts)); err != nil {
		return 0, fmt.Errorf("mark completed: %w", err)
	}
	return len(texts), nil
}

// RemoveFile deletes an attachment everywhere: vectors first, then the
// metadata row. The vector delete runs first so a partial failure leaves
// the metadata visible for a retry rather than orphaning vectors.
func (w *Worker) RemoveFile(ctx context.Context, fileID string) error {
	if err := w.store.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("ingestion: delete vectors for %s: %w", fileID, err)
	}
	if err := w.files.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("ingestion: delete metadata for %s: %w", fileID, err)
	}
	return nil
}
