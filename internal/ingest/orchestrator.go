// Package ingest drives the full document pipeline for one material:
// fetch bytes → extract text → chunk → embed → index, tracking a persisted
// ProcessingStatus through every run.
//
// Ingestion fails loud: embedding and indexing errors abort the run and land
// on the status record, retriable from scratch. Quality concerns from
// extraction and chunking are logged and the run continues; partial
// grounding beats no grounding.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookworm-labs/studyrag/internal/chunker"
	"github.com/bookworm-labs/studyrag/internal/embedding"
	"github.com/bookworm-labs/studyrag/internal/extractor"
	"github.com/bookworm-labs/studyrag/internal/vectorindex"
)

// DefaultRunTimeout bounds one ingestion run. Generous because large
// documents mean many embedding shards, but never unbounded: on expiry the
// material transitions to FAILED instead of lingering in PROCESSING.
const DefaultRunTimeout = 10 * time.Minute

// ErrMaterialNotFound indicates the object store has no bytes for the key.
var ErrMaterialNotFound = errors.New("material not found")

// ObjectStore fetches the raw uploaded document.
type ObjectStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// StatusStore persists ProcessingStatus and chunk audit rows.
type StatusStore interface {
	UpsertStatus(ctx context.Context, status *ProcessingStatus) error
	GetStatus(ctx context.Context, materialID string) (*ProcessingStatus, error)
	ReplaceChunks(ctx context.Context, materialID string, chunks []ChunkRecord) error
}

// Embedder is the batch embedding dependency.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) (*embedding.BatchResult, error)
}

// VectorIndex is the chunk index dependency. DeleteByMaterial must be
// acknowledged before Upsert begins so no reader observes a mixed chunk set.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []*vectorindex.IndexedChunk) error
	DeleteByMaterial(ctx context.Context, materialID string) error
}

// Request identifies one material to ingest.
type Request struct {
	MaterialID string
	TenantID   string
	ObjectKey  string
	Kind       extractor.Kind
}

// Result summarizes a completed run.
type Result struct {
	TotalChunks   int
	IndexedChunks int
	FailedChunks  int
	PageCount     int
	Duration      time.Duration
}

// Orchestrator runs the ingestion pipeline. Independent materials may be
// ingested concurrently by separate calls; there is no shared mutable state
// across invocations.
type Orchestrator struct {
	objects   ObjectStore
	extractor *extractor.Extractor
	chunker   *chunker.Chunker
	embedder  Embedder
	index     VectorIndex
	statuses  StatusStore
	timeout   time.Duration
	logger    *slog.Logger
}

// NewOrchestrator wires the pipeline. Clients are constructed once at
// startup and injected; nil logger falls back to the default.
func NewOrchestrator(
	objects ObjectStore,
	ext *extractor.Extractor,
	ch *chunker.Chunker,
	embedder Embedder,
	index VectorIndex,
	statuses StatusStore,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		objects:   objects,
		extractor: ext,
		chunker:   ch,
		embedder:  embedder,
		index:     index,
		statuses:  statuses,
		timeout:   DefaultRunTimeout,
		logger:    logger,
	}
}

// SetRunTimeout overrides the per-run deadline.
func (o *Orchestrator) SetRunTimeout(d time.Duration) {
	if d > 0 {
		o.timeout = d
	}
}

// Ingest runs the full pipeline for one material. Either indexing fully
// succeeds (possibly with a recorded count of failed chunk embeddings) or
// the material is left FAILED and retriable from scratch.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (*Result, error) {
	return o.run(ctx, req, StateProcessing)
}

// Retry re-runs the whole pipeline for a material that previously failed.
// There is no mid-pipeline resume; the run starts again at the object-store
// fetch.
func (o *Orchestrator) Retry(ctx context.Context, req Request) (*Result, error) {
	if err := o.persistState(ctx, req, StateRetrying, nil, ""); err != nil {
		return nil, err
	}
	return o.run(ctx, req, StateProcessing)
}

func (o *Orchestrator) run(ctx context.Context, req Request, entry State) (*Result, error) {
	start := time.Now()
	log := o.logger.With("material", req.MaterialID, "key", req.ObjectKey)

	if req.MaterialID == "" || req.ObjectKey == "" {
		return nil, fmt.Errorf("ingest: material id and object key required")
	}

	if err := o.persistState(ctx, req, entry, nil, ""); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	result, err := o.pipeline(ctx, req, log)
	if err != nil {
		message := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			message = fmt.Sprintf("ingestion timed out after %s", o.timeout)
		}
		// Terminal state on every failure path, persisted outside the
		// expired run context.
		if persistErr := o.persistState(context.WithoutCancel(ctx), req, StateFailed, result, message); persistErr != nil {
			log.Error("failed to persist FAILED status", "error", persistErr)
		}
		log.Warn("ingestion failed", "error", err)
		return nil, err
	}

	result.Duration = time.Since(start)
	if err := o.persistState(ctx, req, StateCompleted, result, ""); err != nil {
		return nil, err
	}

	log.Info("ingestion complete",
		"chunks", result.TotalChunks,
		"indexed", result.IndexedChunks,
		"failed", result.FailedChunks,
		"duration", result.Duration,
	)
	return result, nil
}

// pipeline executes the ordered steps; the first failing step aborts the
// rest of the run.
func (o *Orchestrator) pipeline(ctx context.Context, req Request, log *slog.Logger) (*Result, error) {
	result := &Result{}

	data, err := o.objects.Fetch(ctx, req.ObjectKey)
	if err != nil {
		return result, fmt.Errorf("fetch material bytes: %w", err)
	}
	log.Debug("fetched material", "size", len(data))

	extracted, err := o.extractor.Extract(data, req.Kind)
	if err != nil {
		return result, fmt.Errorf("extract text: %w", err)
	}
	result.PageCount = extracted.PageCount
	if report := o.extractor.Validate(extracted); !report.OK {
		// Quality concerns are logged, never fatal; partial text still
		// serves retrieval.
		log.Warn("extraction quality issues", "issues", report.Issues)
	}

	chunked, err := o.chunker.Chunk(extracted.Text, req.MaterialID)
	if err != nil {
		return result, fmt.Errorf("chunk text: %w", err)
	}
	result.TotalChunks = len(chunked.Chunks)
	if issues := o.chunker.ValidateChunks(chunked.Chunks); len(issues) > 0 {
		log.Warn("chunk quality issues", "issues", issues)
	}
	log.Debug("chunked material", "chunks", len(chunked.Chunks), "tokens", chunked.TotalTokens)

	texts := make([]string, len(chunked.Chunks))
	for i, c := range chunked.Chunks {
		texts[i] = c.Content
	}
	batch, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return result, fmt.Errorf("embed chunks: %w", err)
	}
	result.FailedChunks = batch.FailureCount

	// Chunk-to-embedding alignment by position is load-bearing: indexed
	// metadata would be corrupted by any reordering.
	indexed := make([]*vectorindex.IndexedChunk, 0, batch.SuccessCount)
	records := make([]ChunkRecord, 0, len(chunked.Chunks))
	for i, c := range chunked.Chunks {
		vector := batch.Vectors[i]
		records = append(records, ChunkRecord{
			ID:           c.ID,
			MaterialID:   req.MaterialID,
			ChunkIndex:   c.ChunkIndex,
			ChunkType:    string(c.Type),
			TokenCount:   c.TokenCount,
			CharCount:    c.CharCount,
			SectionTitle: c.Metadata.SectionTitle,
			Embedded:     vector != nil,
		})
		if vector == nil {
			continue
		}
		indexed = append(indexed, &vectorindex.IndexedChunk{
			ID:           c.ID,
			Values:       vector.Values,
			MaterialID:   req.MaterialID,
			TenantID:     req.TenantID,
			Content:      c.Content,
			ChunkType:    string(c.Type),
			ChunkIndex:   c.ChunkIndex,
			PageNumber:   c.Metadata.PageNumber,
			SectionTitle: c.Metadata.SectionTitle,
			TokenCount:   c.TokenCount,
			CharCount:    c.CharCount,
		})
	}

	// Delete must be acknowledged before upserting so a re-ingest never
	// leaves a mixed old/new chunk set visible.
	if err := o.index.DeleteByMaterial(ctx, req.MaterialID); err != nil {
		return result, fmt.Errorf("clear stale chunks: %w", err)
	}
	if err := o.index.Upsert(ctx, indexed); err != nil {
		return result, fmt.Errorf("index chunks: %w", err)
	}
	result.IndexedChunks = len(indexed)

	if err := o.statuses.ReplaceChunks(ctx, req.MaterialID, records); err != nil {
		return result, fmt.Errorf("persist chunk records: %w", err)
	}

	return result, nil
}

func (o *Orchestrator) persistState(ctx context.Context, req Request, state State, result *Result, message string) error {
	status := &ProcessingStatus{
		MaterialID:   req.MaterialID,
		TenantID:     req.TenantID,
		State:        state,
		ErrorMessage: message,
		UpdatedAt:    time.Now().UTC(),
	}
	if result != nil {
		status.TotalChunks = result.TotalChunks
		status.ProcessedChunks = result.IndexedChunks
		status.FailedChunks = result.FailedChunks
	}
	if err := o.statuses.UpsertStatus(ctx, status); err != nil {
		return fmt.Errorf("persist status %s: %w", state, err)
	}
	return nil
}
