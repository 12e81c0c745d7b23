package storage

import (
	"context"
	"io"
)

// ObjectStorage publishes finished CSV artifacts to a bucket.
type ObjectStorage interface {
	// EnsureBucket makes sure the configured bucket is usable
	EnsureBucket(ctx context.Context) error

	// Upload stores size bytes from reader under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens the object stored under key
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the retrieval URL for key
	GetURL(key string) string

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)
}
