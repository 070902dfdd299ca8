package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// ContentKind indicates the storage namespace a blob belongs to.
type ContentKind int

const (
	// CiphertextKind for encrypted asset content.
	CiphertextKind ContentKind = iota
	// ManifestKind for small metadata blobs accompanying ciphertext.
	ManifestKind
)

// String returns the kind name.
func (ck ContentKind) String() string {
	switch ck {
	case CiphertextKind:
		return "ciphertext"
	case ManifestKind:
		return "manifest"
	default:
		return "unknown"
	}
}

// StorageLocation represents a URI for a blob storage backend.
type StorageLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStorageLocation creates a storage location from a URI string with validation.
func NewStorageLocation(uri string) (StorageLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3", "ipfs", "vault":
		// Valid scheme
	default:
		return StorageLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StorageLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc StorageLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc StorageLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

var (
	// ErrContentNotFound is returned when requested content cannot be found
	// in the storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible due to network issues, authentication failures, or outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is
	// malformed or names an unsupported scheme.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// BlobStore provides content-addressed storage for ciphertext. Refs are the
// SHA-256 of the stored bytes, so the same content always lands on the same
// ref regardless of which backend served the write.
type BlobStore interface {
	// Get retrieves data by content ref and kind.
	Get(ctx context.Context, ref ContentRef, kind ContentKind) ([]byte, error)

	// Put saves data and returns its content ref.
	Put(ctx context.Context, data []byte, kind ContentKind) (ContentRef, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// BlobStoreFactory creates blob store backends from location URIs.
type BlobStoreFactory interface {
	// BackendFor creates a backend from a URI.
	// Supports file://, s3://, ipfs://, vault://
	BackendFor(location StorageLocation) (BlobStore, error)

	// CreateMultiBackend creates an aggregated backend that stores to all
	// and fetches with fallback.
	CreateMultiBackend(locations []StorageLocation) (BlobStore, error)
}
