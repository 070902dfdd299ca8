// Package storage provides content-addressed blob storage with pluggable
// backends.
//
// The package offers a unified BlobStore interface for storing and
// retrieving ciphertext and manifest blobs identified by the SHA-256 hash
// of their bytes:
//
//   - File system storage for local development and testing
//   - S3-compatible storage for cloud deployments
//   - IPFS storage for decentralized content
//   - Vault KV storage for small high-sensitivity blobs
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/escrow/blobs/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://ipfs.example.com:5001/
//   - vault://TOKEN@vault.example.com:8200/secret/escrow
//
// # Content Addressing
//
// A blob's ref is the SHA-256 hash of its bytes, so identical content
// lands on the same ref on every backend. Ciphertext and manifests are
// stored in separate namespaces.
//
// # Multi-Backend Redundancy
//
// The factory can aggregate several backends into one MultiBackend that
// writes to all available backends and reads with fallback, so losing any
// single backend loses no content.
package storage
