// Package history maintains a bounded daily time series per package,
// recording how its dependent counts evolve across refreshes.
package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matzehuels/usedby/pkg/cache"
)

// MaxSnapshots bounds the series length. At one snapshot per day this holds
// a year; the oldest snapshots are dropped first.
const MaxSnapshots = 365

// Snapshot is one day's observation for a package. DependentCount falls
// back to RepoCount when the entry carried no live total.
type Snapshot struct {
	Date           string         `json:"date"` // YYYY-MM-DD, UTC
	DependentCount int            `json:"dependentCount"`
	RepoCount      int            `json:"repoCount"`
	Versions       map[string]int `json:"versions,omitempty"`
}

// Append records entry as today's snapshot in the series for cacheKey. A
// second refresh on the same day replaces that day's snapshot rather than
// appending. Count-only entries carry no repo list worth charting and are
// skipped entirely.
func Append(ctx context.Context, store cache.Store, cacheKey string, entry *cache.Entry, now time.Time) error {
	if entry.CountOnly {
		return nil
	}

	key := cache.HistoryKey(cacheKey)
	series, err := load(ctx, store, key)
	if err != nil {
		return err
	}

	snap := snapshotOf(entry, now)
	if n := len(series); n > 0 && series[n-1].Date == snap.Date {
		series[n-1] = snap
	} else {
		series = append(series, snap)
	}
	if len(series) > MaxSnapshots {
		series = series[len(series)-MaxSnapshots:]
	}

	value, err := json.Marshal(series)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, value, nil)
}

// Load returns the series for cacheKey, oldest first. A package with no
// history yields an empty series, not an error.
func Load(ctx context.Context, store cache.Store, cacheKey string) ([]Snapshot, error) {
	return load(ctx, store, cache.HistoryKey(cacheKey))
}

func load(ctx context.Context, store cache.Store, key string) ([]Snapshot, error) {
	value, _, err := store.Get(ctx, key)
	if err == cache.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var series []Snapshot
	if err := json.Unmarshal(value, &series); err != nil {
		// A corrupt series is abandoned and rebuilt from today forward.
		return nil, nil
	}
	return series, nil
}

func snapshotOf(entry *cache.Entry, now time.Time) Snapshot {
	snap := Snapshot{
		Date:      now.UTC().Format("2006-01-02"),
		RepoCount: len(entry.Repos),
	}
	if entry.DependentCount != nil {
		snap.DependentCount = *entry.DependentCount
	} else {
		snap.DependentCount = len(entry.Repos)
	}
	for _, repo := range entry.Repos {
		if repo.Version == "" {
			continue
		}
		if snap.Versions == nil {
			snap.Versions = make(map[string]int)
		}
		snap.Versions[repo.Version]++
	}
	return snap
}
