package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a key has no stored blob.
var ErrNotFound = errors.New("blob not found")

// BlobStore holds opaque binary objects: source documents and exported archives.
type BlobStore interface {
	// Put uploads content to the blob store.
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get retrieves content from the blob store.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns a list of keys matching the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a blob.
	Delete(ctx context.Context, key string) error

	// URL returns a location the rendering surface can fetch the blob from.
	URL(ctx context.Context, key string) (string, error)
}
