package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matzehuels/usedby/pkg/observability"
)

// LockTTL bounds how long a crashed refresh can hold a key's advisory lock.
// A crashed holder's lock self-expires after this rather than being
// released; that window of possible duplicate work is accepted.
const LockTTL = 5 * time.Minute

// ReadStatus classifies a cache read.
type ReadStatus int

const (
	// StatusMiss: no entry, or a pending placeholder.
	StatusMiss ReadStatus = iota
	// StatusHit: entry age strictly less than the freshness window.
	StatusHit
	// StatusStale: entry age at or beyond the freshness window. Stale
	// entries are still served while a refresh runs in the background.
	StatusStale
)

// ReadResult is the outcome of [Read]. Entry is nil for misses except when
// the miss was a pending placeholder, which callers may want to report.
type ReadResult struct {
	Status  ReadStatus
	Entry   *Entry
	Pending bool
}

// Read fetches and classifies the entry at key. Pending placeholders are
// always misses regardless of age. The freshness boundary itself counts as
// stale: age == window is not a hit.
func Read(ctx context.Context, store Store, key string, now time.Time) (*ReadResult, error) {
	value, _, err := store.Get(ctx, key)
	if err == ErrNotFound {
		observability.Cache().OnCacheMiss(ctx, "dependents")
		return &ReadResult{Status: StatusMiss}, nil
	}
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(value, &entry); err != nil {
		// Corrupt entry: treat as a miss so a refresh overwrites it.
		observability.Cache().OnCacheMiss(ctx, "dependents")
		return &ReadResult{Status: StatusMiss}, nil
	}

	if entry.Pending {
		observability.Cache().OnCacheMiss(ctx, "dependents")
		return &ReadResult{Status: StatusMiss, Pending: true}, nil
	}

	status := StatusStale
	if now.Sub(entry.FetchedAt) < FreshnessWindow {
		status = StatusHit
	}
	observability.Cache().OnCacheHit(ctx, "dependents")
	return &ReadResult{Status: status, Entry: &entry}, nil
}

// Write persists entry at key, overwriting wholesale and storing the
// metadata subset alongside the value for cheap list-time freshness checks.
func Write(ctx context.Context, store Store, key string, entry *Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, key, value, entry.Metadata()); err != nil {
		return err
	}
	observability.Cache().OnCacheSet(ctx, "dependents", len(value))
	return nil
}

// TouchLastAccessed records an access by updating lastAccessedAt in the
// entry's metadata. The value body is never rewritten, so a touch racing a
// concurrent refresh cannot put an old body back. Touching an absent key is
// a no-op.
func TouchLastAccessed(ctx context.Context, store Store, key string, now time.Time) error {
	meta, err := store.GetMetadata(ctx, key)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if meta == nil {
		// Entry written before metadata existed: rebuild it from the body.
		value, _, err := store.Get(ctx, key)
		if err == ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var entry Entry
		if err := json.Unmarshal(value, &entry); err != nil {
			return err
		}
		meta = entry.Metadata()
	}
	meta.LastAccessedAt = now
	return store.PutMetadata(ctx, key, meta)
}

// AcquireLock takes the advisory lock for a cache key. It reports false
// without waiting when another holder has it; background refreshers that
// lose the race skip their refresh entirely.
func AcquireLock(ctx context.Context, store Store, cacheKey string) (bool, error) {
	return store.Acquire(ctx, LockKey(cacheKey), LockTTL)
}

// ReleaseLock drops the advisory lock. Callers release in a defer so the
// lock is cleared even when the refresh fails.
func ReleaseLock(ctx context.Context, store Store, cacheKey string) error {
	return store.Delete(ctx, LockKey(cacheKey))
}

// IsLocked reports whether a refresh currently holds the key's lock.
func IsLocked(ctx context.Context, store Store, cacheKey string) (bool, error) {
	_, err := store.GetMetadata(ctx, LockKey(cacheKey))
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
