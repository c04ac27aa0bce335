package ingest

import "time"

// State is the processing state of a material. Transitions:
// PENDING → PROCESSING → {COMPLETED | FAILED} → RETRYING → PROCESSING.
// The orchestrator guarantees every run ends in a terminal state; a material
// stuck in PROCESSING is a bug, not a degraded mode.
type State string

const (
	StatePending    State = "PENDING"
	StateProcessing State = "PROCESSING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
	StateRetrying   State = "RETRYING"
)

// ProcessingStatus is the persisted per-material pipeline record, mutated
// only by the orchestrator.
type ProcessingStatus struct {
	MaterialID      string
	TenantID        string
	State           State
	TotalChunks     int
	ProcessedChunks int
	FailedChunks    int
	ErrorMessage    string
	UpdatedAt       time.Time
}

// ChunkRecord is the relational audit row for one chunk; vector values live
// in the vector index only.
type ChunkRecord struct {
	ID           string
	MaterialID   string
	ChunkIndex   int
	ChunkType    string
	TokenCount   int
	CharCount    int
	SectionTitle string
	Embedded     bool
}
