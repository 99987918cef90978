package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/salesdesk/crm-api/internal/application/opportunity"
)

var _ opportunity.BlobStore = (*FSStore)(nil)

// FSStore stores blobs under a base directory. Development fallback when no
// bucket is configured.
type FSStore struct {
	baseDir string
}

// NewFSStore builds the store rooted at baseDir, creating it if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("fs store: empty base dir")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("fs store: create base dir: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// Put writes the blob under baseDir/key and returns the file path. Keys with
// path traversal are rejected.
func (s *FSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("fs store: invalid key %q", key)
	}
	path := filepath.Join(s.baseDir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("fs store: create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("fs store: write %s: %w", key, err)
	}
	return path, nil
}
