// Package embedding converts text into fixed-dimension vectors via the
// OpenAI embeddings API, with per-shard failure isolation during batch runs.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/sync/errgroup"
)

const (
	// Model is the embedding model identity recorded on every vector, used
	// for re-embedding-compatibility checks later.
	Model = "text-embedding-3-small"

	// Dimension is the vector size for Model.
	Dimension = 1536

	// DefaultShardSize is how many texts go into one API call.
	DefaultShardSize = 100

	// maxInflightShards bounds the embedding fan-out so a large document
	// cannot slam the API with unbounded parallelism.
	maxInflightShards = 4
)

// ErrTotalFailure indicates that no shard of a batch produced embeddings.
// Partial failures are not errors; they are reported as counts.
var ErrTotalFailure = errors.New("embedding failed for every text in the batch")

// Vector is one embedding with its model identity.
type Vector struct {
	Values []float32
	Model  string
}

// BatchResult reports a batch embedding run. Vectors is aligned with the
// input slice; failed items hold nil.
type BatchResult struct {
	Vectors      []*Vector
	SuccessCount int
	FailureCount int
}

// embedFunc performs one API call for a shard of texts. Swappable in tests.
type embedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embedder generates embeddings in shards with retry on rate limits.
type Embedder struct {
	call      embedFunc
	shardSize int
}

// NewEmbedder creates an Embedder backed by client. shardSize <= 0 selects
// DefaultShardSize.
func NewEmbedder(client *Client, shardSize int) *Embedder {
	e := newEmbedderWithCall(nil, shardSize)
	e.call = func(ctx context.Context, texts []string) ([][]float32, error) {
		return requestEmbeddings(ctx, client.client, texts)
	}
	return e
}

func newEmbedderWithCall(call embedFunc, shardSize int) *Embedder {
	if shardSize <= 0 {
		shardSize = DefaultShardSize
	}
	return &Embedder{call: call, shardSize: shardSize}
}

// EmbedQuery embeds a single text, typically a user question at query time.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) (*Vector, error) {
	vectors, err := e.embedShardWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding api returned %d vectors for one input", len(vectors))
	}
	return &Vector{Values: vectors[0], Model: Model}, nil
}

// EmbedBatch embeds texts in shards. A failed shard leaves nil vectors at
// its indices and the batch continues; only a fully failed batch returns
// ErrTotalFailure. Index alignment between input and output is preserved.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	result := &BatchResult{Vectors: make([]*Vector, len(texts))}
	if len(texts) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflightShards)

	for start := 0; start < len(texts); start += e.shardSize {
		end := min(start+e.shardSize, len(texts))
		g.Go(func() error {
			vectors, err := e.embedShardWithRetry(ctx, texts[start:end])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailureCount += end - start
				return nil // isolate the failure, keep other shards going
			}
			for i, values := range vectors {
				result.Vectors[start+i] = &Vector{Values: values, Model: Model}
			}
			result.SuccessCount += len(vectors)
			return nil
		})
	}
	_ = g.Wait()

	if result.SuccessCount == 0 {
		return nil, fmt.Errorf("%w: %d texts", ErrTotalFailure, len(texts))
	}
	return result, nil
}

// embedShardWithRetry calls the API for one shard, retrying rate-limit
// errors with exponential backoff. Other errors are permanent.
func (e *Embedder) embedShardWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		out, err := e.call(ctx, texts)
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(out) != len(texts) {
			return backoff.Permanent(fmt.Errorf("embedding api returned %d vectors for %d inputs", len(out), len(texts)))
		}
		vectors = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return vectors, nil
}

// requestEmbeddings performs the actual OpenAI embeddings call.
func requestEmbeddings(ctx context.Context, client *openai.Client, texts []string) ([][]float32, error) {
	resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: Model,
	})
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = toFloat32(data.Embedding)
	}
	return vectors, nil
}

// isRateLimitError checks for HTTP 429 from the OpenAI API.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
