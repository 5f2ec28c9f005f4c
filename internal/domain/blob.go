package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports ledger history (closed positions and audit entries) to
// blob storage and returns the object paths written.
type Archiver interface {
	Archive(ctx context.Context, before time.Time) ([]string, error)
}
