// Package storage provides the clip storage backends: a local filesystem
// and the Amazon S3 and Google Cloud Storage object stores.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/audiolibrelab/cliplog/internal/config"
	"github.com/spf13/afero"
)

var (
	// ErrUnsupportedBackend is returned by New for an unknown backend name.
	ErrUnsupportedBackend = errors.New("unsupported storage backend")
	// ErrInsufficientSpace is returned by CheckSpace.
	ErrInsufficientSpace = errors.New("insufficient free space")
)

// Handle is one object being written. Close commits it under its final
// name; Abort discards everything written so far.
type Handle interface {
	io.Writer
	Close() error
	Abort() error
}

// Storage opens clip objects by name.
type Storage interface {
	// Open starts a new object, replacing any existing one of that name on
	// commit.
	Open(ctx context.Context, name string) (Handle, error)
	// Ping reports whether the backend is reachable and writable.
	Ping(ctx context.Context) error
	// Location returns a human-readable location for name.
	Location(name string) string
	Close() error
}

// SpaceChecker is implemented by backends that can report free space.
type SpaceChecker interface {
	CheckSpace(ctx context.Context, need uint64) error
}

// New creates the backend selected by cfg.
func New(ctx context.Context, cfg config.OutputConfig) (Storage, error) {
	switch cfg.Backend {
	case "", config.BackendLocal:
		return NewLocal(afero.NewOsFs(), cfg.Directory), nil
	case config.BackendS3:
		return NewS3(ctx, cfg.Bucket, cfg.Directory, cfg.Region)
	case config.BackendGCS:
		return NewGCS(ctx, cfg.Bucket, cfg.Directory)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}
