package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// Store is the key-value backend contract. Implementations exist for
// memory (tests, single-process runs), Redis, and MongoDB.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves a value and its metadata. Returns ErrNotFound if the
	// key is absent. Metadata may be nil for entries written by older
	// versions that predate metadata.
	Get(ctx context.Context, key string) ([]byte, *Metadata, error)

	// GetMetadata retrieves only the metadata for a key, without the value
	// body. Returns ErrNotFound if the key is absent; a nil Metadata with a
	// nil error means the key exists but has no metadata.
	GetMetadata(ctx context.Context, key string) (*Metadata, error)

	// Put stores a value and its metadata, overwriting any existing entry.
	Put(ctx context.Context, key string, value []byte, meta *Metadata) error

	// PutMetadata replaces only the metadata of an existing entry.
	PutMetadata(ctx context.Context, key string, meta *Metadata) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List pages through keys with their metadata, without fetching value
	// bodies. Pass an empty cursor to start; an empty returned cursor means
	// the scan is complete.
	List(ctx context.Context, cursor string, limit int) (*ListPage, error)

	// Acquire atomically creates key with a TTL if it does not already
	// exist, reporting whether the caller won. Used for advisory locks.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Close releases backend resources.
	Close() error
}

// ListPage is one page of a key scan.
type ListPage struct {
	Keys   []KeyInfo
	Cursor string // empty when the scan is complete
}

// KeyInfo pairs a key with its stored metadata (nil for legacy entries and
// non-entry keys such as locks).
type KeyInfo struct {
	Key  string
	Meta *Metadata
}
