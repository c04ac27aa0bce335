// Package retrieval assembles the grounding context for a user question:
// embed the query, search the vector index, return the most relevant chunks.
//
// Retrieval is a best-effort enhancement. Any failure here degrades to an
// empty result set so the user's chat turn is never blocked; ingestion is
// where failures are loud.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/bookworm-labs/studyrag/internal/embedding"
	"github.com/bookworm-labs/studyrag/internal/vectorindex"
)

const (
	// DefaultTopK is how many chunks ground an answer.
	DefaultTopK = 5

	// DefaultTimeout bounds the whole embed+search round trip; retrieval
	// sits on the interactive path and must not stall a chat turn.
	DefaultTimeout = 5 * time.Second
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) (*embedding.Vector, error)
}

// Searcher answers top-K similarity queries scoped to one material.
type Searcher interface {
	Search(ctx context.Context, vector []float32, materialID string, topK int) ([]vectorindex.RetrievalResult, error)
}

// Assembler fetches the chunks most relevant to a query.
type Assembler struct {
	embedder QueryEmbedder
	index    Searcher
	topK     int
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithTopK overrides the number of chunks retrieved.
func WithTopK(k int) Option {
	return func(a *Assembler) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithTimeout overrides the retrieval deadline.
func WithTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAssembler creates an Assembler. A nil logger falls back to the default.
func NewAssembler(embedder QueryEmbedder, index Searcher, logger *slog.Logger, opts ...Option) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Assembler{
		embedder: embedder,
		index:    index,
		topK:     DefaultTopK,
		timeout:  DefaultTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble returns the chunks of materialID most relevant to query, ordered
// by descending similarity. Content is returned untruncated; prompt-budget
// truncation belongs to the context builder so callers needing full text for
// citation are not short-changed. On any failure it returns an empty slice:
// the caller proceeds without grounding.
func (a *Assembler) Assemble(ctx context.Context, materialID, query string) []vectorindex.RetrievalResult {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	vector, err := a.embedder.EmbedQuery(ctx, query)
	if err != nil {
		a.logger.Warn("query embedding failed, answering without grounding",
			"material", materialID, "error", err)
		return []vectorindex.RetrievalResult{}
	}

	results, err := a.index.Search(ctx, vector.Values, materialID, a.topK)
	if err != nil {
		a.logger.Warn("vector search failed, answering without grounding",
			"material", materialID, "error", err)
		return []vectorindex.RetrievalResult{}
	}
	return results
}
