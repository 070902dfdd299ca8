package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

// Factory creates blob store backends from location URIs and aggregates
// them into redundant multi-backends.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a blob store factory.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{log: logger}
}

// BackendFor creates a blob store from a location URI.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS node storage
//   - vault:// - HashiCorp Vault KV storage
func (sf *Factory) BackendFor(location interfaces.StorageLocation) (interfaces.BlobStore, error) {
	switch strings.ToLower(location.Scheme) {
	case "ipfs":
		return sf.createIPFSBackend(location)
	case "s3":
		return sf.createS3Backend(location)
	case "vault":
		return sf.createVaultBackend(location)
	case "file":
		return sf.createFileBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a multi-backend from a list of location URIs.
// Invalid URIs are skipped with a warning; at least one backend must be
// created or an error is returned.
func (sf *Factory) CreateMultiBackend(locations []interfaces.StorageLocation) (interfaces.BlobStore, error) {
	backends := make([]interfaces.BlobStore, 0, len(locations))

	for _, loc := range locations {
		backend, err := sf.BackendFor(loc)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", loc.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	return NewMultiBackend(backends, sf.log), nil
}

// createIPFSBackend creates an IPFS storage backend.
// URI format: ipfs://host:port/?timeout=30s
func (sf *Factory) createIPFSBackend(loc interfaces.StorageLocation) (interfaces.BlobStore, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", loc.String()))

	host, port := splitHostPort(loc.Host, "5001")

	timeout := loc.GetParam("timeout")
	if timeout == "" {
		timeout = "30s"
	}

	return NewIPFSBackend(host, port, timeout, sf.log)
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
func (sf *Factory) createS3Backend(loc interfaces.StorageLocation) (interfaces.BlobStore, error) {
	sf.log.Debug("Creating S3 backend", slog.String("uri", loc.String()))

	bucketName := loc.Host
	path := strings.TrimPrefix(loc.Path, "/")

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := loc.GetParam("endpoint")

	var accessKey, secretKey string
	if loc.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(loc.Auth, ":")
		sf.log.Debug("Using embedded credentials for write access")
	} else {
		sf.log.Debug("No credentials provided, S3 bucket assumed to be public, write operations may fail")
	}

	return NewS3Backend(bucketName, path, region, endpoint, accessKey, secretKey, sf.log)
}

// createVaultBackend creates a Vault KV v2 storage backend.
// URI format: vault://TOKEN@host:port/mount/path
func (sf *Factory) createVaultBackend(loc interfaces.StorageLocation) (interfaces.BlobStore, error) {
	sf.log.Debug("Creating Vault backend", slog.String("uri", loc.String()))

	token := loc.Auth
	if token == "" {
		return nil, fmt.Errorf("vault URI is missing a token: %s", loc)
	}

	mount, dataPath, _ := strings.Cut(strings.Trim(loc.Path, "/"), "/")
	if mount == "" {
		mount = "secret"
	}
	if dataPath == "" {
		dataPath = "escrow"
	}

	scheme := "https"
	if loc.GetParamBool("insecure") {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, loc.Host)

	return NewVaultBackend(address, mount, dataPath, token, sf.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *Factory) createFileBackend(loc interfaces.StorageLocation) (interfaces.BlobStore, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", loc.String()))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("empty path in file URI: %s", loc)
	}

	return NewFileBackend(path, sf.log)
}

func splitHostPort(host, defaultPort string) (string, string) {
	h, p, ok := strings.Cut(host, ":")
	if !ok || p == "" {
		return host, defaultPort
	}
	return h, p
}
