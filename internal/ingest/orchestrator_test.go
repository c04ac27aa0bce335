package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookworm-labs/studyrag/internal/chunker"
	"github.com/bookworm-labs/studyrag/internal/embedding"
	"github.com/bookworm-labs/studyrag/internal/extractor"
	"github.com/bookworm-labs/studyrag/internal/vectorindex"
)

type fakeObjects struct {
	data map[string][]byte
	err  error
}

func (f *fakeObjects) Fetch(ctx context.Context, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.data[key]
	if !ok {
		return nil, ErrMaterialNotFound
	}
	return data, nil
}

type blockingObjects struct{}

func (blockingObjects) Fetch(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeStatuses struct {
	mu     sync.Mutex
	states []State
	last   *ProcessingStatus
	chunks map[string][]ChunkRecord
	err    error
}

func newFakeStatuses() *fakeStatuses {
	return &fakeStatuses{chunks: map[string][]ChunkRecord{}}
}

func (f *fakeStatuses) UpsertStatus(_ context.Context, status *ProcessingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	copied := *status
	f.states = append(f.states, status.State)
	f.last = &copied
	return nil
}

func (f *fakeStatuses) GetStatus(_ context.Context, materialID string) (*ProcessingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil || f.last.MaterialID != materialID {
		return nil, errors.New("not found")
	}
	copied := *f.last
	return &copied, nil
}

func (f *fakeStatuses) ReplaceChunks(_ context.Context, materialID string, chunks []ChunkRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks[materialID] = chunks
	return nil
}

// fakeEmbedder embeds every text as a tiny vector, failing the texts whose
// index is listed in failAt.
type fakeEmbedder struct {
	failAt map[int]bool
	err    error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) (*embedding.BatchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	result := &embedding.BatchResult{Vectors: make([]*embedding.Vector, len(texts))}
	for i := range texts {
		if f.failAt[i] {
			result.FailureCount++
			continue
		}
		result.Vectors[i] = &embedding.Vector{Values: []float32{float32(i)}, Model: embedding.Model}
		result.SuccessCount++
	}
	if result.SuccessCount == 0 && len(texts) > 0 {
		return nil, embedding.ErrTotalFailure
	}
	return result, nil
}

// fakeIndex stores points keyed by chunk ID and records call ordering so the
// delete-before-upsert guarantee is checkable.
type fakeIndex struct {
	mu        sync.Mutex
	points    map[string]*vectorindex.IndexedChunk
	calls     []string
	upsertErr error
	deleteErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: map[string]*vectorindex.IndexedChunk{}}
}

func (f *fakeIndex) Upsert(_ context.Context, chunks []*vectorindex.IndexedChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "upsert")
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, c := range chunks {
		f.points[c.ID] = c
	}
	return nil
}

func (f *fakeIndex) DeleteByMaterial(_ context.Context, materialID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for id, c := range f.points {
		if c.MaterialID == materialID {
			delete(f.points, id)
		}
	}
	return nil
}

func (f *fakeIndex) countFor(materialID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.points {
		if c.MaterialID == materialID {
			n++
		}
	}
	return n
}

// sampleText yields enough sentences for a handful of chunks at small
// budgets.
func sampleText(n int) []byte {
	var out []byte
	for i := 0; i < n; i++ {
		out = append(out, []byte(fmt.Sprintf("Sentence number %d talks about the topic at hand in some detail. ", i))...)
	}
	return out
}

type fixture struct {
	orchestrator *Orchestrator
	objects      *fakeObjects
	statuses     *fakeStatuses
	embedder     *fakeEmbedder
	index        *fakeIndex
}

func newFixture() *fixture {
	f := &fixture{
		objects:  &fakeObjects{data: map[string][]byte{"uploads/mat-1.txt": sampleText(60)}},
		statuses: newFakeStatuses(),
		embedder: &fakeEmbedder{},
		index:    newFakeIndex(),
	}
	ch := chunker.New(chunker.WithChunkSize(50), chunker.WithMaxChunkSize(80), chunker.WithOverlap(20), chunker.WithMinChunkSize(0))
	f.orchestrator = NewOrchestrator(f.objects, extractor.New(), ch, f.embedder, f.index, f.statuses, nil)
	return f
}

func request() Request {
	return Request{
		MaterialID: "mat-1",
		TenantID:   "tenant-1",
		ObjectKey:  "uploads/mat-1.txt",
		Kind:       extractor.KindText,
	}
}

func TestIngest_HappyPath(t *testing.T) {
	f := newFixture()

	result, err := f.orchestrator.Ingest(context.Background(), request())
	require.NoError(t, err)

	assert.Greater(t, result.TotalChunks, 1)
	assert.Equal(t, result.TotalChunks, result.IndexedChunks)
	assert.Zero(t, result.FailedChunks)

	assert.Equal(t, []State{StateProcessing, StateCompleted}, f.statuses.states)
	assert.Equal(t, StateCompleted, f.statuses.last.State)
	assert.Equal(t, result.TotalChunks, f.statuses.last.TotalChunks)

	assert.Equal(t, result.TotalChunks, f.index.countFor("mat-1"))
	assert.Len(t, f.statuses.chunks["mat-1"], result.TotalChunks)

	// Stale chunks are cleared before the new set lands.
	require.GreaterOrEqual(t, len(f.index.calls), 2)
	assert.Equal(t, "delete", f.index.calls[0])
	assert.Equal(t, "upsert", f.index.calls[1])
}

func TestIngest_FetchFailure(t *testing.T) {
	f := newFixture()
	f.objects.err = errors.New("bucket unavailable")

	_, err := f.orchestrator.Ingest(context.Background(), request())
	require.Error(t, err)

	assert.Equal(t, []State{StateProcessing, StateFailed}, f.statuses.states)
	assert.Contains(t, f.statuses.last.ErrorMessage, "bucket unavailable")
	assert.Zero(t, f.index.countFor("mat-1"), "no partial commit on failure")
}

func TestIngest_ExtractionFailure(t *testing.T) {
	f := newFixture()
	req := request()
	req.Kind = extractor.Kind("epub")

	_, err := f.orchestrator.Ingest(context.Background(), req)
	require.ErrorIs(t, err, extractor.ErrUnsupportedFormat)
	assert.Equal(t, StateFailed, f.statuses.last.State)
}

func TestIngest_EmbeddingTotalFailure(t *testing.T) {
	f := newFixture()
	f.embedder.err = embedding.ErrTotalFailure

	_, err := f.orchestrator.Ingest(context.Background(), request())
	require.ErrorIs(t, err, embedding.ErrTotalFailure)

	assert.Equal(t, StateFailed, f.statuses.last.State)
	assert.Zero(t, f.index.countFor("mat-1"))
}

func TestIngest_PartialEmbeddingFailureCompletes(t *testing.T) {
	f := newFixture()
	f.embedder.failAt = map[int]bool{0: true}

	result, err := f.orchestrator.Ingest(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, 1, result.FailedChunks)
	assert.Equal(t, result.TotalChunks-1, result.IndexedChunks)

	assert.Equal(t, StateCompleted, f.statuses.last.State)
	assert.Equal(t, 1, f.statuses.last.FailedChunks)
	assert.Equal(t, result.IndexedChunks, f.index.countFor("mat-1"))

	// Audit rows still cover every chunk, marking which ones embedded.
	records := f.statuses.chunks["mat-1"]
	require.Len(t, records, result.TotalChunks)
	assert.False(t, records[0].Embedded)
	assert.True(t, records[1].Embedded)
}

func TestIngest_IndexFailure(t *testing.T) {
	f := newFixture()
	f.index.upsertErr = vectorindex.ErrIndexUnreachable

	_, err := f.orchestrator.Ingest(context.Background(), request())
	require.ErrorIs(t, err, vectorindex.ErrIndexUnreachable)
	assert.Equal(t, StateFailed, f.statuses.last.State)
}

func TestIngest_IdempotentReingestion(t *testing.T) {
	f := newFixture()

	first, err := f.orchestrator.Ingest(context.Background(), request())
	require.NoError(t, err)
	countAfterFirst := f.index.countFor("mat-1")

	second, err := f.orchestrator.Ingest(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, first.TotalChunks, second.TotalChunks)
	assert.Equal(t, countAfterFirst, f.index.countFor("mat-1"),
		"re-ingestion must not leave duplicates or stale chunks")
}

func TestRetry_StateSequence(t *testing.T) {
	f := newFixture()

	_, err := f.orchestrator.Retry(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []State{StateRetrying, StateProcessing, StateCompleted}, f.statuses.states)
}

func TestIngest_TimeoutReachesTerminalState(t *testing.T) {
	f := newFixture()
	ch := chunker.New()
	f.orchestrator = NewOrchestrator(blockingObjects{}, extractor.New(), ch, f.embedder, f.index, f.statuses, nil)
	f.orchestrator.SetRunTimeout(20 * time.Millisecond)

	_, err := f.orchestrator.Ingest(context.Background(), request())
	require.Error(t, err)

	assert.Equal(t, StateFailed, f.statuses.last.State)
	assert.Contains(t, f.statuses.last.ErrorMessage, "timed out")
}

func TestIngest_RequiresIdentifiers(t *testing.T) {
	f := newFixture()

	_, err := f.orchestrator.Ingest(context.Background(), Request{})
	assert.Error(t, err)
	assert.Empty(t, f.statuses.states, "no status writes for an invalid request")
}
