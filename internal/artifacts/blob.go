package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact kinds.
const (
	KindDocument    = "document"
	KindSpreadsheet = "spreadsheet"
)

// BlobStore persists a rendered artifact and returns its location.
type BlobStore interface {
	Persist(ctx context.Context, reportID, kind string, data []byte) (string, error)
}

// FileBlobStore writes artifacts under a local directory, one subdirectory
// per report. Writing the same report twice overwrites in place, so a retried
// generation never leaves two artifact sets.
type FileBlobStore struct {
	Dir string
}

func NewFileBlobStore(dir string) *FileBlobStore {
	return &FileBlobStore{Dir: dir}
}

func (f *FileBlobStore) Persist(ctx context.Context, reportID, kind string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := fileName(kind)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(f.Dir, reportID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

func fileName(kind string) (string, error) {
	switch kind {
	case KindDocument:
		return "report.txt", nil
	case KindSpreadsheet:
		return "report.xlsx", nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}
}
