package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction over a directory of named blobs, used to keep
// an off-node copy of a collection's persisted files (config.json, the
// columnar store, and every index.bin) in addition to the local disk copy.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create opens a blob for writing, replacing any existing content.
	// The blob is only guaranteed durable once Close returns nil.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Delete removes a blob. It is not an error to delete a name that
	// does not exist.
	Delete(ctx context.Context, name string) error

	// List returns the names of blobs whose name starts with prefix,
	// sorted lexicographically.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer
	// ReadAt reads len(p) bytes starting at offset off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a handle for streaming a new blob's content.
type WritableBlob interface {
	io.Writer
	io.Closer
	// Sync forces any buffered data towards stable storage without closing
	// the blob. Implementations for which this isn't meaningful (e.g. S3,
	// where a write is only committed on Close) may make this a no-op.
	Sync() error
}

// Mappable is an optional interface for Blobs that can return their full
// contents as a single byte slice.
type Mappable interface {
	// Bytes returns the underlying byte slice.
	// The slice is valid until the Blob is closed.
	Bytes() ([]byte, error)
}

// RangeReader is an optional interface for Blobs that can stream a sub-range
// without an intermediate ReadAt buffer, useful for remote stores where a
// single ranged GET is cheaper than repeated ReadAt calls.
type RangeReader interface {
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
}
