package domain

import (
	"context"
	"io"
	"time"
)

// ArchiveObject is one file in the execution archive.
type ArchiveObject struct {
	Key        string
	Size       int64
	ModifiedAt time.Time
}

// BlobWriter stores archive files.
type BlobWriter interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
}

// BlobReader lists and opens archive files. Open returns ErrNotFound for a
// missing key.
type BlobReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ArchiveObject, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Archiver exports terminal executions older than a cutoff to cold storage
// and reports how many it moved.
type Archiver interface {
	ArchiveExecutions(ctx context.Context, before time.Time) (int64, error)
}
