// Package cache implements the tiered result cache for dependent lookups:
// typed entries with freshness windows, list-queryable metadata stored
// alongside each value, a TTL'd advisory lock per key, and pluggable
// storage backends (memory, Redis, MongoDB).
package cache

import (
	"time"

	"github.com/matzehuels/usedby/pkg/github"
)

// FreshnessWindow is how long a cache entry counts as fresh. An entry whose
// age equals the window is already stale; strictly-less-than is a hit.
const FreshnessWindow = 24 * time.Hour

// PartialFreshnessWindow is the tighter window the scheduled sweep applies
// to partial (rate-limit-truncated) entries, refreshing them sooner.
const PartialFreshnessWindow = 12 * time.Hour

// Entry is the persisted unit per (platform, packageName).
//
// Entries are overwritten wholesale on each refresh. [TouchLastAccessed]
// records accesses in the stored metadata only; the body's lastAccessedAt
// reflects the last refresh, the metadata's the last read.
type Entry struct {
	Repos          []github.ScoredRepo `json:"repos"`
	FetchedAt      time.Time           `json:"fetchedAt"`
	LastAccessedAt time.Time           `json:"lastAccessedAt"`

	// Partial marks a result truncated by upstream rate limiting, distinct
	// from an empty-but-complete result.
	Partial bool `json:"partial"`

	// DependentCount is the best-effort live total, distinct from
	// len(Repos) which is capped by pipeline limits.
	DependentCount *int `json:"dependentCount,omitempty"`

	// CountOnly entries hold just a count, no repo list. They are valid
	// hits for the count read path only; the full-data path treats them as
	// misses.
	CountOnly bool `json:"countOnly,omitempty"`

	// Pending is a placeholder written while work sits in the queue.
	// Readers always treat pending entries as misses.
	Pending bool `json:"pending,omitempty"`
}

// Metadata returns the list-queryable subset of the entry, stored alongside
// the value so a full scan can assess freshness without reading bodies.
func (e *Entry) Metadata() *Metadata {
	return &Metadata{
		FetchedAt:      e.FetchedAt,
		LastAccessedAt: e.LastAccessedAt,
		Partial:        e.Partial,
		CountOnly:      e.CountOnly,
		Pending:        e.Pending,
	}
}

// Metadata is the freshness-relevant subset of an Entry.
type Metadata struct {
	FetchedAt      time.Time `json:"fetchedAt"      bson:"fetchedAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt" bson:"lastAccessedAt"`
	Partial        bool      `json:"partial"        bson:"partial"`
	CountOnly      bool      `json:"countOnly,omitempty" bson:"countOnly,omitempty"`
	Pending        bool      `json:"pending,omitempty"   bson:"pending,omitempty"`
}

// Window returns the freshness window that applies to an entry with this
// metadata: partial entries are considered stale sooner.
func (m *Metadata) Window() time.Duration {
	if m.Partial {
		return PartialFreshnessWindow
	}
	return FreshnessWindow
}
