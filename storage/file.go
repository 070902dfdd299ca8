package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

// FileBackend stores blobs on the local file system, one subdirectory per
// content kind, file names being the hex content ref.
type FileBackend struct {
	baseDir     string
	prefixes    map[interfaces.ContentKind]string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file backend rooted at baseDir, creating the
// per-kind subdirectories if they do not exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	prefixes := map[interfaces.ContentKind]string{
		interfaces.CiphertextKind: "ciphertext",
		interfaces.ManifestKind:   "manifests",
	}
	for _, subdir := range prefixes {
		if err := os.MkdirAll(filepath.Join(baseDir, subdir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", subdir, err)
		}
	}

	return &FileBackend{
		baseDir:     baseDir,
		prefixes:    prefixes,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Get retrieves a blob by content ref and kind. Returns ErrContentNotFound
// if the file doesn't exist.
func (b *FileBackend) Get(ctx context.Context, ref interfaces.ContentRef, kind interfaces.ContentKind) ([]byte, error) {
	filePath := b.getFilePath(ref, kind)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, interfaces.ErrContentNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched blob from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Put saves a blob and returns its content ref, the SHA-256 of the data.
func (b *FileBackend) Put(ctx context.Context, data []byte, kind interfaces.ContentKind) (interfaces.ContentRef, error) {
	ref := interfaces.ComputeRef(data)
	filePath := b.getFilePath(ref, kind)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return ref, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return ref, fmt.Errorf("failed to write file: %w", err)
	}

	b.log.Debug("Stored blob in file",
		slog.String("path", filePath),
		slog.String("contentRef", ref.String()))

	return ref, nil
}

// Available checks that the base directory still exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) getFilePath(ref interfaces.ContentRef, kind interfaces.ContentKind) string {
	return filepath.Join(b.baseDir, b.prefixes[kind], ref.String())
}
