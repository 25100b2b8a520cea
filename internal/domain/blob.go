package domain

import (
	"context"
	"time"
)

// BlobInfo describes an archived object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter stores objects in the archive bucket.
type BlobWriter interface {
	// Put stores data at path, replacing any existing object.
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// BlobReader reads objects from the archive bucket.
type BlobReader interface {
	// Get returns the object at path. A missing object yields an error
	// matching ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)
	// List returns the objects under prefix in key order.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// Archiver copies committed ledger events to cold storage.
type Archiver interface {
	// ArchiveEvents exports events after the stored cursor and returns how
	// many were written.
	ArchiveEvents(ctx context.Context) (int64, error)
}
