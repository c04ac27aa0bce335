// Package objectstore fetches uploaded material bytes. Ingestion reads
// whole documents, so the interface returns bytes rather than a stream.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound indicates no object exists for the key.
var ErrNotFound = errors.New("object not found")

// Store reads raw material bytes by object key.
type Store interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}
