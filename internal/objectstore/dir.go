package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir serves objects from a local directory, keyed by relative path. Used
// for local runs and tests where no bucket is available.
type Dir struct {
	root string
}

// NewDir creates a directory-backed store rooted at root.
func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("object directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("object directory %s is not a directory", root)
	}
	return &Dir{root: root}, nil
}

// Fetch reads the file at root/key. Keys must stay inside the root.
func (d *Dir) Fetch(_ context.Context, key string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("invalid object key %q", key)
	}

	data, err := os.ReadFile(filepath.Join(d.root, clean))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}
