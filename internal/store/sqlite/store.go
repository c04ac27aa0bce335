// Package sqlite persists per-material processing status and chunk audit
// rows. Vector values never land here; the relational side holds only what
// operators and the status API need to see.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bookworm-labs/studyrag/internal/ingest"
)

// ErrNotFound indicates no status row exists for the material.
var ErrNotFound = errors.New("status not found")

const schema = `
CREATE TABLE IF NOT EXISTS material_status (
	material_id      TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL DEFAULT '',
	state            TEXT NOT NULL,
	total_chunks     INTEGER NOT NULL DEFAULT 0,
	processed_chunks INTEGER NOT NULL DEFAULT 0,
	failed_chunks    INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS material_chunks (
	id            TEXT PRIMARY KEY,
	material_id   TEXT NOT NULL,
	chunk_index   INTEGER NOT NULL,
	chunk_type    TEXT NOT NULL DEFAULT '',
	token_count   INTEGER NOT NULL DEFAULT 0,
	char_count    INTEGER NOT NULL DEFAULT 0,
	section_title TEXT NOT NULL DEFAULT '',
	embedded      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_material_chunks_material
	ON material_chunks(material_id, chunk_index);
`

// Store is the SQLite-backed status store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at dataDir/studyrag.db and
// applies the schema. If dataDir is empty, defaults to ~/.studyrag/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".studyrag", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "studyrag.db")

	// WAL mode so status reads never block an in-flight ingestion write.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// UpsertStatus stores or updates the processing status for a material.
func (s *Store) UpsertStatus(ctx context.Context, status *ingest.ProcessingStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO material_status
			(material_id, tenant_id, state, total_chunks, processed_chunks, failed_chunks, error_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(material_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			state = excluded.state,
			total_chunks = excluded.total_chunks,
			processed_chunks = excluded.processed_chunks,
			failed_chunks = excluded.failed_chunks,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, status.MaterialID, status.TenantID, string(status.State),
		status.TotalChunks, status.ProcessedChunks, status.FailedChunks,
		status.ErrorMessage, status.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving status: %w", err)
	}
	return nil
}

// GetStatus retrieves the processing status for a material.
func (s *Store) GetStatus(ctx context.Context, materialID string) (*ingest.ProcessingStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT material_id, tenant_id, state, total_chunks, processed_chunks, failed_chunks, error_message, updated_at
		FROM material_status WHERE material_id = ?
	`, materialID)

	var status ingest.ProcessingStatus
	var state string
	if err := row.Scan(&status.MaterialID, &status.TenantID, &state,
		&status.TotalChunks, &status.ProcessedChunks, &status.FailedChunks,
		&status.ErrorMessage, &status.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning status: %w", err)
	}
	status.State = ingest.State(state)

	return &status, nil
}

// ReplaceChunks swaps the audit rows for a material atomically: the old set
// is removed and the new set inserted in one transaction, so a reader never
// sees chunks from two different ingestion runs.
func (s *Store) ReplaceChunks(ctx context.Context, materialID string, chunks []ingest.ChunkRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM material_chunks WHERE material_id = ?", materialID); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO material_chunks
			(id, material_id, chunk_index, chunk_type, token_count, char_count, section_title, embedded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.MaterialID, chunk.ChunkIndex,
			chunk.ChunkType, chunk.TokenCount, chunk.CharCount, chunk.SectionTitle,
			chunk.Embedded); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListChunks returns the audit rows for a material in chunk order.
func (s *Store) ListChunks(ctx context.Context, materialID string) ([]ingest.ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, material_id, chunk_index, chunk_type, token_count, char_count, section_title, embedded
		FROM material_chunks WHERE material_id = ?
		ORDER BY chunk_index
	`, materialID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ingest.ChunkRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk ingest.ChunkRecord
		if err := rows.Scan(&chunk.ID, &chunk.MaterialID, &chunk.ChunkIndex,
			&chunk.ChunkType, &chunk.TokenCount, &chunk.CharCount,
			&chunk.SectionTitle, &chunk.Embedded); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// ListStatuses returns all material statuses, most recently updated first.
func (s *Store) ListStatuses(ctx context.Context) ([]ingest.ProcessingStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT material_id, tenant_id, state, total_chunks, processed_chunks, failed_chunks, error_message, updated_at
		FROM material_status
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying statuses: %w", err)
	}
	defer rows.Close()

	var statuses []ingest.ProcessingStatus //nolint:prealloc // size unknown from query
	for rows.Next() {
		var status ingest.ProcessingStatus
		var state string
		if err := rows.Scan(&status.MaterialID, &status.TenantID, &state,
			&status.TotalChunks, &status.ProcessedChunks, &status.FailedChunks,
			&status.ErrorMessage, &status.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning status: %w", err)
		}
		status.State = ingest.State(state)
		statuses = append(statuses, status)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating statuses: %w", err)
	}

	return statuses, nil
}
