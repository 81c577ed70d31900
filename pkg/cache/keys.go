package cache

import (
	"strings"

	"github.com/matzehuels/usedby/pkg/errors"
)

// Key namespaces. Ordinary cache keys are "{platform}:{packageName}";
// history and lock keys live under distinguished prefixes so a key scan can
// tell them apart by prefix inspection alone.
const (
	HistoryPrefix = "history:"
	LockPrefix    = "lock:"
)

// BuildKey forms the cache key for a platform and package name.
func BuildKey(platform, name string) string {
	return platform + ":" + name
}

// ParseKey splits a cache key back into platform and package name. Package
// names may contain colons-free slashes and scoped segments, so only the
// first colon delimits.
func ParseKey(key string) (platform, name string, err error) {
	platform, name, found := strings.Cut(key, ":")
	if !found || platform == "" || name == "" {
		return "", "", errors.New(errors.ErrCodeInvalidCacheKey, "malformed cache key %q", key)
	}
	return platform, name, nil
}

// HistoryKey returns the history-series key for a cache key.
func HistoryKey(cacheKey string) string { return HistoryPrefix + cacheKey }

// LockKey returns the advisory-lock key for a cache key.
func LockKey(cacheKey string) string { return LockPrefix + cacheKey }

// IsDataKey reports whether key is an ordinary cache entry, as opposed to a
// history series or a lock tombstone.
func IsDataKey(key string) bool {
	return !strings.HasPrefix(key, HistoryPrefix) && !strings.HasPrefix(key, LockPrefix)
}
