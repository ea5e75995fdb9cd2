package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docchat-go/internal/assemble"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
)

// Mode selects the retrieval strategy for a request.
type Mode string

const (
	// ModeHybrid is similarity-ranked top-k retrieval with oversampling
	// before threshold filtering.
	ModeHybrid Mode = "hybrid"

	// ModeFullFile returns all chunks of the attached files, bounded by a
	// hard cap, ordered by position rather than relevance.
	ModeFullFile Mode = "full_file"
)

// Validation errors returned before any provider call is made. Group-level
// provider failures are never surfaced as errors from Retrieve.
var (
	// ErrEmptyQuery is returned when the query text is empty or whitespace.
	ErrEmptyQuery = errors.New("retrieval: query must not be empty")

	// ErrInvalidTopK is returned when top_k is not positive.
	ErrInvalidTopK = errors.New("retrieval: top_k must be positive")

	// ErrInvalidMode is returned for an unknown retrieval mode.
	ErrInvalidMode = errors.New("retrieval: unknown mode")
)

const (
	// defaultFetchFactor is the oversampling multiplier applied to top_k to
	// derive fetch_k when the caller does not set it. Oversampling
	// counteracts the loss from post-filtering (score threshold, dedupe).
	defaultFetchFactor = 4

	// DefaultFullFileMaxChunks is the hard ceiling on chunks returned per
	// group in full-file mode.
	DefaultFullFileMaxChunks = 800

	// defaultGroupTimeout bounds one group's embed + query round trip.
	// Embedding calls against cold local models can be slow, so this is
	// deliberately generous; the vector store backends carry their own
	// shorter timeouts underneath.
	defaultGroupTimeout = 60 * time.Second

	// previewLen is the number of characters of chunk text included in the
	// caller-facing chunk summaries.
	previewLen = 160
)

// Store is the vector search surface the engine queries — in production the
// vectorstore.Router, in tests a fake.
type Store interface {
	// Query performs a similarity search in one embedding space.
	Query(ctx context.Context, embedding []float32, k int, filter rag.Filter) ([]rag.Result, error)

	// FetchAll returns chunks without similarity ranking, for full-file mode.
	FetchAll(ctx context.Context, filter rag.Filter, limit int) ([]rag.Result, error)
}

// EmbedderResolver resolves an embedding model tag to its adapter. The
// embedder.Registry satisfies it. Resolution happens per group, per call —
// the engine holds no "current" embedding mode that concurrent groups could
// race on.
type EmbedderResolver interface {
	Resolve(tag string) (rag.Embedder, error)
}

// Config holds the dependencies and tuning for an Engine.
type Config struct {
	// Store is the vector search surface. Required.
	Store Store

	// Embedders resolves model tags to embedding adapters. Required.
	Embedders EmbedderResolver

	// Assembler renders merged results into the context block.
	// Defaults to assemble.New(0).
	Assembler *assemble.Assembler

	// FullFileMaxChunks is the per-group chunk ceiling in full-file mode.
	// Defaults to DefaultFullFileMaxChunks.
	FullFileMaxChunks int

	// GroupTimeout bounds each group's embed + query round trip.
	// Defaults to 60s.
	GroupTimeout time.Duration

	// Registerer receives the engine's Prometheus metrics.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Engine is the retrieval orchestrator. It is safe for concurrent use; each
// Retrieve call carries its own state.
type Engine struct {
	// store is the vector search surface.
	store Store

	// embedders resolves model tags to adapters.
	embedders EmbedderResolver

	// assembler renders merged results into the context block.
	assembler *assemble.Assembler

	// fullFileMaxChunks is the per-group ceiling in full-file mode.
	fullFileMaxChunks int

	// groupTimeout bounds each group's embed + query round trip.
	groupTimeout time.Duration

	// metrics holds the engine's Prometheus instruments.
	metrics *engineMetrics
}

// NewEngine constructs an Engine from the given config.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("retrieval: store must not be nil")
	}
	if cfg.Embedders == nil {
		return nil, fmt.Errorf("retrieval: embedder resolver must not be nil")
	}

	assembler := cfg.Assembler
	if assembler == nil {
		assembler = assemble.New(0)
	}
	maxChunks := cfg.FullFileMaxChunks
	if maxChunks <= 0 {
		maxChunks = DefaultFullFileMaxChunks
	}
	timeout := cfg.GroupTimeout
	if timeout <= 0 {
		timeout = defaultGroupTimeout
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Engine{
		store:             cfg.Store,
		embedders:         cfg.Embedders,
		assembler:         assembler,
		fullFileMaxChunks: maxChunks,
		groupTimeout:      timeout,
		metrics:           newEngineMetrics(reg),
	}, nil
}

// Request is one retrieval call.
type Request struct {
	// Query is the user's question text. Must not be empty.
	Query string

	// TopK is the final result count. Must be positive.
	TopK int

	// FetchK is the oversampled neighbour count fetched per group before
	// threshold filtering. Values not greater than TopK fall back to
	// 4 × TopK.
	FetchK int

	// Files is the conversation's attached files, as returned by the file
	// metadata store.
	Files []rag.FileRef

	// Mode selects hybrid or full-file retrieval. Empty means hybrid.
	Mode Mode

	// ScoreThreshold optionally drops hybrid results scoring below it.
	ScoreThreshold *float32

	// Debug attaches the diagnostic record to the outcome.
	Debug bool
}

// ChunkRef is the caller-facing summary of one merged result.
type ChunkRef struct {
	// Filename is the source file's original name.
	Filename string `json:"filename"`

	// ChunkIndex is the chunk's position within its file.
	ChunkIndex int `json:"chunk_index"`

	// Score is the similarity score in the group's native scale.
	Score float32 `json:"score"`

	// Distance is the native distance, lower is better.
	Distance float32 `json:"distance"`

	// ContentPreview is the first characters of the chunk text.
	ContentPreview string `json:"content_preview"`
}

// Outcome is the result of one retrieval call. An empty outcome with
// RAGUsed=false is the normal degraded result for conversations with no
// usable attachments — it is never an error.
type Outcome struct {
	// ContextText is the assembled, budgeted, cited context block.
	ContextText string `json:"context_text"`

	// Chunks summarises the merged results in final order.
	Chunks []ChunkRef `json:"chunks"`

	// RAGUsed is true when at least one chunk made it into ContextText.
	// Callers use it to pick the contextless prompt wording.
	RAGUsed bool `json:"rag_used"`

	// Debug is the diagnostic record, present only when requested.
	Debug *Debug `json:"debug,omitempty"`
}

// groupOutcome carries one group's results or failure out of its goroutine.
type groupOutcome struct {
	results  []rag.Result
	err      error
	failKind string
	limitHit bool
}

// Retrieve runs the full orchestration: resolve groups, query each group in
// its own embedding space (concurrently, with independent failure capture),
// merge the survivors, and assemble the context block.
//
// Only malformed input produces an error. Zero attachments and all-groups-
// failed both return an empty outcome with RAGUsed=false.
func (e *Engine) Retrieve(ctx context.Context, req *Request) (*Outcome, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	if strings.TrimSpace(req.Query) == "" {
		e.metrics.retrievalsTotal.WithLabelValues(string(mode), "invalid").Inc()
		return nil, ErrEmptyQuery
	}
	if req.TopK <= 0 {
		e.metrics.retrievalsTotal.WithLabelValues(string(mode), "invalid").Inc()
		return nil, ErrInvalidTopK
	}
	if mode != ModeHybrid && mode != ModeFullFile {
		e.metrics.retrievalsTotal.WithLabelValues(string(mode), "invalid").Inc()
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}

	topK := req.TopK
	fetchK := req.FetchK
	if fetchK <= topK {
		fetchK = topK * defaultFetchFactor
	}

	start := time.Now()
	log := logging.FromContext(ctx)

	groups := ResolveGroups(req.Files)
	debug := &Debug{
		Mode:              mode,
		MixedEmbeddings:   len(groups) > 1,
		GroupCount:        len(groups),
		FullFileMaxChunks: e.fullFileMaxChunks,
	}

	if len(groups) == 0 {
		// No usable attachments — a normal no-context outcome.
		e.metrics.retrievalsTotal.WithLabelValues(string(mode), "empty").Inc()
		e.metrics.retrievalDurationSeconds.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
		return e.finish(req, debug, nil), nil
	}

	// Groups are independent queries against disjoint file sets; fan out.
	outcomes := make([]groupOutcome, len(groups))
	var wg sync.WaitGroup
	for i := range groups {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			gctx, cancel := context.WithTimeout(ctx, e.groupTimeout)
			defer cancel()

			outcomes[i] = e.retrieveGroup(gctx, mode, req.Query, topK, fetchK, req.ScoreThreshold, &groups[i])
		}(i)
	}
	wg.Wait()

	var merged []rag.Result
	for i, g := range groups {
		out := outcomes[i]
		gd := GroupDebug{
			ModelTag:  g.ModelTag,
			FileCount: len(g.Files),
			Succeeded: out.err == nil,
			Chunks:    len(out.results),
		}
		if out.err != nil {
			gd.Error = out.err.Error()
			e.metrics.groupFailuresTotal.WithLabelValues(out.failKind).Inc()
			log.Warn("retrieval: group failed",
				slog.String("model_tag", g.ModelTag),
				slog.String("kind", out.failKind),
				slog.String("error", out.err.Error()),
			)
		}
		if out.limitHit {
			debug.FullFileLimitHit = true
		}
		debug.Groups = append(debug.Groups, gd)
		merged = append(merged, out.results...)
	}

	merged = mergeResults(merged, mode, topK)

	outcome := e.finish(req, debug, merged)

	result := "ok"
	if !outcome.RAGUsed {
		result = "empty"
	}
	e.metrics.retrievalsTotal.WithLabelValues(string(mode), result).Inc()
	e.metrics.retrievalDurationSeconds.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	e.metrics.contextChars.Observe(float64(debug.ContextChars))

	if failed := debug.failedGroups(); failed > 0 {
		log.Info("retrieval: completed with degraded coverage",
			slog.Int("groups", debug.GroupCount),
			slog.Int("failed", failed),
			slog.Int("chunks", len(outcome.Chunks)),
		)
	}

	return outcome, nil
}

// retrieveGroup runs one group's query in that group's embedding space.
func (e *Engine) retrieveGroup(ctx context.Context, mode Mode, query string, topK, fetchK int, threshold *float32, g *Group) groupOutcome {
	filter := rag.Filter{
		ConversationID: g.Files[0].ConversationID,
		OwnerID:        g.Files[0].OwnerID,
		ModelTag:       g.ModelTag,
		Dimension:      g.Dimension,
		FileIDs:        g.FileIDs(),
	}

	if mode == ModeFullFile {
		// Completeness over relevance: no embedding, positional order, hard cap.
		results, err := e.store.FetchAll(ctx, filter, e.fullFileMaxChunks+1)
		if err != nil {
			return groupOutcome{err: err, failKind: "query"}
		}
		sortByPosition(results)
		limitHit := len(results) > e.fullFileMaxChunks
		if limitHit {
			results = results[:e.fullFileMaxChunks]
		}
		return groupOutcome{results: results, limitHit: limitHit}
	}

	emb, err := e.embedders.Resolve(g.ModelTag)
	if err != nil {
		return groupOutcome{err: err, failKind: "embed"}
	}

	vectors, err := emb.Embed(ctx, []string{query})
	if err != nil {
		return groupOutcome{err: err, failKind: "embed"}
	}
	if len(vectors) == 0 {
		return groupOutcome{
			err:      fmt.Errorf("retrieval: embedder returned no vector for query"),
			failKind: "embed",
		}
	}
	vector := vectors[0]

	dim := g.Dimension
	if dim == 0 {
		dim = emb.Dimensions()
	}
	if len(vector) != dim {
		// Comparing incompatible vectors would silently corrupt ranking;
		// the whole group is treated as failed instead.
		return groupOutcome{
			err:      fmt.Errorf("retrieval: embedding dimension %d disagrees with group %q dimension %d", len(vector), g.ModelTag, dim),
			failKind: "dimension",
		}
	}

	results, err := e.store.Query(ctx, vector, fetchK, filter)
	if err != nil {
		return groupOutcome{err: err, failKind: "query"}
	}

	if threshold != nil {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= *threshold {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	// Backend order is not assumed stable; always re-sort before the local cut.
	sortByScore(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return groupOutcome{results: results}
}

// mergeResults merges the surviving groups' results: global dedupe by
// (filename, chunk_index) — identical content can be attached to the same
// conversation more than once — then mode-appropriate ordering and the final
// cut. Scores are not renormalized across groups; the score ordering across
// groups is presentational, not a calibrated cross-space ranking.
func mergeResults(results []rag.Result, mode Mode, topK int) []rag.Result {
	if mode == ModeFullFile {
		sortByPosition(results)
	} else {
		sortByScore(results)
	}

	seen := make(map[string]bool, len(results))
	deduped := results[:0]
	for _, r := range results {
		key := fmt.Sprintf("%s#%d", r.Filename, r.Index)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, r)
	}

	// Full-file callers get every surviving chunk (the mode's point is
	// completeness); hybrid callers get one combined top-k answer.
	if mode == ModeHybrid && len(deduped) > topK {
		deduped = deduped[:topK]
	}
	return deduped
}

// sortByScore orders results by descending score, breaking ties by filename
// and chunk index so output is deterministic given the same inputs.
func sortByScore(results []rag.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Filename != results[j].Filename {
			return results[i].Filename < results[j].Filename
		}
		return results[i].Index < results[j].Index
	})
}

// sortByPosition orders results by filename then ascending chunk index.
func sortByPosition(results []rag.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Filename != results[j].Filename {
			return results[i].Filename < results[j].Filename
		}
		return results[i].Index < results[j].Index
	})
}

// finish assembles the context block and builds the outcome.
func (e *Engine) finish(req *Request, debug *Debug, merged []rag.Result) *Outcome {
	rendered := e.assembler.Build(merged)
	debug.ContextChars = rendered.Chars

	outcome := &Outcome{
		ContextText: rendered.Context,
		RAGUsed:     rendered.Included > 0,
	}
	for _, r := range merged {
		preview := r.Text
		if len(preview) > previewLen {
			preview = preview[:previewLen]
		}
		outcome.Chunks = append(outcome.Chunks, ChunkRef{
			Filename:       r.Filename,
			ChunkIndex:     r.Index,
			Score:          r.Score,
			Distance:       r.Distance,
			ContentPreview: preview,
		})
	}
	if req.Debug {
		outcome.Debug = debug
	}
	return outcome
}
