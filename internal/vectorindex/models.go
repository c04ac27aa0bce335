package vectorindex

// CollectionName is the single Qdrant collection holding every material's
// chunks.
const CollectionName = "material_chunks"

// VectorDimension matches the embedding model (text-embedding-3-small).
const VectorDimension = 1536

// IndexedChunk is the vector-store record for one chunk. The payload carries
// enough metadata that a search hit is directly usable as retrieval output
// with no secondary lookup.
type IndexedChunk struct {
	ID           string // chunk ID (UUID, deterministic per material+index)
	Values       []float32
	MaterialID   string
	TenantID     string
	Content      string
	ChunkType    string
	ChunkIndex   int
	PageNumber   int // 0 when unknown
	SectionTitle string
	TokenCount   int
	CharCount    int
}

// RetrievalResult is one search hit, ordered by descending similarity.
type RetrievalResult struct {
	ChunkID      string
	Content      string
	ChunkType    string
	ChunkIndex   int
	PageNumber   int
	SectionTitle string
	Score        float32
}
