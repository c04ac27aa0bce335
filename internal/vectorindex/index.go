// Package vectorindex adapts Qdrant as the chunk vector store: idempotent
// batched upserts, material-scoped similarity search and filter-based
// deletion for re-ingestion.
package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize is Qdrant's sensible per-call batch; a logical upsert is
// split internally but each batch either fully lands or errors.
const upsertBatchSize = 100

// Index wraps the Qdrant client with connection management and the
// material-chunk schema.
type Index struct {
	client *qdrant.Client
	host   string
	port   int
}

// New creates the Qdrant client and verifies it is reachable, retrying the
// health check with exponential backoff before failing fast.
func New(host string, port int) (*Index, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	idx := &Index{client: client, host: host, port: port}

	if err := idx.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrIndexUnreachable, err)
	}
	return idx, nil
}

func (x *Index) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return x.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check.
func (x *Index) Health(ctx context.Context) error {
	result, err := x.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the chunk collection (cosine distance,
// 1536-dim vectors) and its payload indexes. Idempotent.
func (x *Index) EnsureCollection(ctx context.Context) error {
	collections, err := x.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name == CollectionName {
			return nil
		}
	}

	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     VectorDimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// Payload indexes keep the material_id filter from degrading into a
	// full scan.
	for _, field := range []string{"material_id", "tenant_id", "chunk_type"} {
		_, err := x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: CollectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create index for field %s: %w", field, err)
		}
	}
	return nil
}

// Upsert stores chunks in internal batches of 100. Each batch is retried as
// a whole and any batch error surfaces to the caller; a logical upsert never
// silently half-lands.
func (x *Index) Upsert(ctx context.Context, chunks []*IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i, chunk := range chunks {
		if len(chunk.Values) != VectorDimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Values), VectorDimension)
		}
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))

		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, chunk := range chunks[start:end] {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(chunk.ID),
				Vectors: qdrant.NewVectors(chunk.Values...),
				Payload: qdrant.NewValueMap(map[string]any{
					"material_id":   chunk.MaterialID,
					"tenant_id":     chunk.TenantID,
					"content":       chunk.Content,
					"chunk_type":    chunk.ChunkType,
					"chunk_index":   chunk.ChunkIndex,
					"page_number":   chunk.PageNumber,
					"section_title": chunk.SectionTitle,
					"token_count":   chunk.TokenCount,
					"char_count":    chunk.CharCount,
				}),
			})
		}

		if err := x.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// upsertWithRetry performs one waited upsert call with exponential backoff.
// Wait guarantees the points are applied before the call counts as success.
func (x *Index) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// Search returns the topK most similar chunks of one material. The filter on
// material_id is always applied; cross-material leakage would be a
// correctness violation, not a tuning concern.
func (x *Index) Search(ctx context.Context, vector []float32, materialID string, topK int) ([]RetrievalResult, error) {
	if len(vector) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), VectorDimension)
	}
	if materialID == "" {
		return nil, fmt.Errorf("material id required for search")
	}

	points, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("material_id", materialID),
			},
		},
		Limit:       qdrant.PtrOf(uint64(topK)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	results := make([]RetrievalResult, 0, len(points))
	for _, point := range points {
		payload := point.Payload
		results = append(results, RetrievalResult{
			ChunkID:      point.Id.GetUuid(),
			Content:      payload["content"].GetStringValue(),
			ChunkType:    payload["chunk_type"].GetStringValue(),
			ChunkIndex:   int(payload["chunk_index"].GetIntegerValue()),
			PageNumber:   int(payload["page_number"].GetIntegerValue()),
			SectionTitle: payload["section_title"].GetStringValue(),
			Score:        point.Score,
		})
	}

	sortResults(results)
	return results, nil
}

// sortResults orders by descending score with ties broken by chunk index,
// so equal-score hits come back in corpus order rather than store order.
func sortResults(results []RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
}

// DeleteByMaterial removes every chunk of a material. The call waits for the
// deletion to be applied, so a following upsert can never interleave with
// stale points.
func (x *Index) DeleteByMaterial(ctx context.Context, materialID string) error {
	if materialID == "" {
		return fmt.Errorf("material id required for delete")
	}

	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("material_id", materialID),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete chunks for material %s: %w", materialID, err)
	}
	return nil
}

// Count returns the total number of indexed points in the collection.
func (x *Index) Count(ctx context.Context) (uint64, error) {
	collection, err := x.client.GetCollectionInfo(ctx, CollectionName)
	if err != nil {
		return 0, fmt.Errorf("get collection: %w", err)
	}
	return collection.GetPointsCount(), nil
}

// Close releases the underlying client connection.
func (x *Index) Close() error {
	if x.client != nil {
		return x.client.Close()
	}
	return nil
}
