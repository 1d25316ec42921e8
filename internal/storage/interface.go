package storage

import (
	"context"
	"io"
)

// Object is a listed object in a bucket.
type Object struct {
	Key  string
	Size int64
}

// ObjectStorage is the read side of an S3-compatible bucket of curated assets.
type ObjectStorage interface {
	// List returns objects under prefix, at most limit of them (0 means no limit).
	List(ctx context.Context, prefix string, limit int) ([]Object, error)

	// Download opens an object for reading.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the public URL of an object, if one is configured.
	GetURL(key string) string
}
