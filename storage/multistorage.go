package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

// MultiBackend aggregates several blob stores: writes go to every
// available backend, reads fall back through them in order.
type MultiBackend struct {
	backends []interfaces.BlobStore
	log      *slog.Logger
}

// NewMultiBackend creates an aggregated blob store over backends.
func NewMultiBackend(backends []interfaces.BlobStore, logger *slog.Logger) *MultiBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiBackend{
		backends: backends,
		log:      logger,
	}
}

// Get retrieves a blob from the first backend that has it.
func (m *MultiBackend) Get(ctx context.Context, ref interfaces.ContentRef, kind interfaces.ContentKind) ([]byte, error) {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("content_ref", ref.String()))
			continue
		}

		data, err := backend.Get(ctx, ref, kind)
		if err == nil {
			m.log.Debug("Fetched blob",
				slog.String("backend_name", backend.Name()),
				slog.String("content_ref", ref.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("content_ref", ref.String()),
			"err", err)
	}

	m.log.Error("All backends failed to fetch blob",
		slog.String("content_ref", ref.String()),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("all backends failed to fetch %s: %v", ref, errs)
}

// Put saves a blob to every available backend. Succeeds if at least one
// backend accepts the write.
func (m *MultiBackend) Put(ctx context.Context, data []byte, kind interfaces.ContentKind) (interfaces.ContentRef, error) {
	start := time.Now()
	var result interfaces.ContentRef
	var success bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		ref, err := backend.Put(ctx, data, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}

		if !success {
			result = ref
			success = true
			m.log.Info("Stored blob",
				slog.String("backend_name", backend.Name()),
				slog.String("content_ref", ref.String()),
				slog.Duration("duration", time.Since(start)))
		} else if !result.Equal(ref) {
			// Same bytes must hash to the same ref on every backend.
			m.log.Warn("Inconsistent refs from backends",
				slog.String("backend_name", backend.Name()),
				slog.String("expected_ref", result.String()),
				slog.String("actual_ref", ref.String()))
		}
	}

	if !success {
		m.log.Error("All backends failed to store blob",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return result, fmt.Errorf("all backends failed to store blob: %v", errs)
	}
	return result, nil
}

// Available reports whether any backend is available.
func (m *MultiBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend.
func (m *MultiBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns the combined URI of all aggregated backends.
func (m *MultiBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
