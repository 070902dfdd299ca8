package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

// IPFSBackend stores blobs on an IPFS node. Blobs are pinned under their
// IPFS CID and additionally written to the node's mutable file system at a
// deterministic per-ref path, so the content-ref addressing of BlobStore
// works without a separate ref-to-CID index.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	prefixes    map[interfaces.ContentKind]string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates an IPFS backend connected to the node API at
// host:port.
func NewIPFSBackend(host, port string, timeout string, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	return &IPFSBackend{
		shell: shell.NewShell(apiURL),
		host:  host,
		port:  port,
		prefixes: map[interfaces.ContentKind]string{
			interfaces.CiphertextKind: "ciphertext",
			interfaces.ManifestKind:   "manifests",
		},
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout),
	}, nil
}

// Get retrieves a blob by content ref and kind. Returns ErrContentNotFound
// if no blob was written under the ref, or ErrBackendUnavailable if the
// IPFS node is not accessible.
func (b *IPFSBackend) Get(ctx context.Context, ref interfaces.ContentRef, kind interfaces.ContentKind) ([]byte, error) {
	start := time.Now()
	path := b.mfsPath(ref, kind)

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.FilesRead(ctx, path)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			b.log.Debug("Blob not found in IPFS",
				slog.String("path", path),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrContentNotFound
		}

		b.log.Error("Failed to fetch blob from IPFS",
			slog.String("path", path),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch blob from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob from IPFS: %w", err)
	}

	b.log.Debug("Fetched blob from IPFS",
		slog.String("path", path),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Put pins the blob and links it at its per-ref path. Returns
// ErrBackendUnavailable if the IPFS node is not accessible.
func (b *IPFSBackend) Put(ctx context.Context, data []byte, kind interfaces.ContentKind) (interfaces.ContentRef, error) {
	ref := interfaces.ComputeRef(data)

	if !b.shell.IsUp() {
		return ref, interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(bytes.NewReader(data))
	if err != nil {
		return ref, fmt.Errorf("failed to add blob to IPFS: %w", err)
	}

	path := b.mfsPath(ref, kind)
	err = b.shell.FilesWrite(ctx, path, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return ref, fmt.Errorf("failed to link blob at %s: %w", path, err)
	}

	b.log.Debug("Stored blob in IPFS",
		slog.String("ipfsCID", cid),
		slog.String("contentRef", ref.String()),
		slog.String("kind", kind.String()))

	return ref, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) mfsPath(ref interfaces.ContentRef, kind interfaces.ContentKind) string {
	return fmt.Sprintf("/policy-escrow/%s/%s", b.prefixes[kind], ref.String())
}
