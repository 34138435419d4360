package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/casper-member-portal/interfaces"
)

// MultiStorageBackend implements interfaces.BlobStorage using multiple backends with fallback.
// Writes must reach every backend. Reads return the first available backend
// that holds the blob.
type MultiStorageBackend struct {
	backends []interfaces.BlobStorage
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback.
func NewMultiStorageBackend(backends []interfaces.BlobStorage, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Get fetches path from the first available backend that has it.
func (m *MultiStorageBackend) Get(ctx context.Context, path interfaces.BlobPath) ([]byte, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("path", path.String()))
			continue
		}

		data, err := backend.Get(ctx, path)
		if err == nil {
			m.log.Debug("Fetched content",
				slog.String("backend_name", backend.Name()),
				slog.String("path", path.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if errors.Is(err, interfaces.ErrContentNotFound) {
			notFound++
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("path", path.String()),
			"err", err)
	}

	if notFound > 0 && notFound == len(errs) {
		return nil, interfaces.ErrContentNotFound
	}

	m.log.Error("All backends failed to fetch content",
		slog.String("path", path.String()),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("%w: all backends failed to fetch %s: %w", interfaces.ErrBackendUnavailable, path, errors.Join(errs...))
}

// Put saves data to every backend and fails if any backend is unavailable or
// rejects the write. Backends that accepted the write are not rolled back.
func (m *MultiStorageBackend) Put(ctx context.Context, path interfaces.BlobPath, data []byte) error {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Warn("Backend unavailable for write",
				slog.String("backend_name", backend.Name()),
				slog.String("path", path.String()))
			errs = append(errs, fmt.Errorf("%s: unavailable", backend.Name()))
			continue
		}

		if err := backend.Put(ctx, path, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				slog.String("path", path.String()),
				"err", err)
		}
	}

	if len(errs) > 0 {
		m.log.Error("Backends failed to store data",
			slog.String("path", path.String()),
			slog.Int("failed_backends", len(errs)),
			slog.Int("backends", len(m.backends)),
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("%w: %d of %d backends failed to store %s: %w",
			interfaces.ErrBackendUnavailable, len(errs), len(m.backends), path, errors.Join(errs...))
	}

	m.log.Debug("Stored content",
		slog.String("path", path.String()),
		slog.Int("backends", len(m.backends)),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// Available checks if any backend is available.
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend.
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns a combined location URI of all backends.
func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
