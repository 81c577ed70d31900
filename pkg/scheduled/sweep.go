// Package scheduled keeps the cache warm without user traffic: a periodic
// sweep walks every key, finds stale entries, and refreshes the worst few.
package scheduled

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/usedby/pkg/cache"
	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/errors"
	"github.com/matzehuels/usedby/pkg/github"
	"github.com/matzehuels/usedby/pkg/history"
	"github.com/matzehuels/usedby/pkg/pipeline"
)

// MaxRefreshesPerRun caps upstream work per sweep. Remaining stale entries
// wait for the next run.
const MaxRefreshesPerRun = 5

// listPageSize is the List page size used while draining the keyspace.
const listPageSize = 200

// Summary reports one sweep run.
type Summary struct {
	Scanned   int  `json:"scanned"`
	Refreshed int  `json:"refreshed"`
	Skipped   int  `json:"skipped"`
	Locked    int  `json:"locked"` // stale but another holder was refreshing
	Errors    int  `json:"errors"`
	Aborted   bool `json:"aborted"` // stopped early on a rate limit
}

// Sweeper runs cache maintenance sweeps.
type Sweeper struct {
	Store  cache.Store
	GitHub pipeline.GitHub
	Limits pipeline.Limits
	Logger *log.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

type candidate struct {
	key       string
	partial   bool
	fetchedAt time.Time
}

// Run performs one sweep: drain the full keyspace, classify each entry's
// freshness, then refresh the stalest entries up to the per-run cap with
// partial entries served first. A rate-limited refresh, whether a hard
// rate-limit error or a result truncated by the limiter, aborts the rest of
// the run; other refresh failures are counted and the run continues.
func (s *Sweeper) Run(ctx context.Context) (*Summary, error) {
	now := s.now()
	summary := &Summary{}
	var stale []candidate

	cursor := ""
	for {
		page, err := s.Store.List(ctx, cursor, listPageSize)
		if err != nil {
			return nil, err
		}
		for _, info := range page.Keys {
			if !cache.IsDataKey(info.Key) {
				continue
			}
			summary.Scanned++

			meta := info.Meta
			if meta == nil {
				meta = s.metaFromValue(ctx, info.Key)
				if meta == nil {
					summary.Errors++
					continue
				}
			}
			if meta.Pending {
				summary.Skipped++
				continue
			}
			if now.Sub(meta.FetchedAt) < meta.Window() {
				summary.Skipped++
				continue
			}
			stale = append(stale, candidate{key: info.Key, partial: meta.Partial, fetchedAt: meta.FetchedAt})
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	// Partial entries are known-incomplete, so they jump the line; within
	// each group the longest-unrefreshed goes first.
	sort.SliceStable(stale, func(i, j int) bool {
		if stale[i].partial != stale[j].partial {
			return stale[i].partial
		}
		return stale[i].fetchedAt.Before(stale[j].fetchedAt)
	})

	for _, cand := range stale {
		if summary.Refreshed == MaxRefreshesPerRun {
			break
		}
		out, err := s.refresh(ctx, cand.key)
		if err != nil {
			if github.IsRateLimitError(err) || github.IsSecondaryRateLimitError(err) {
				s.Logger.Warn("sweep aborted by rate limit", "key", cand.key, "refreshed", summary.Refreshed)
				summary.Aborted = true
				break
			}
			s.Logger.Error("sweep refresh failed", "key", cand.key, "err", err)
			summary.Errors++
			continue
		}
		if out.lockHeld {
			summary.Locked++
			continue
		}
		summary.Refreshed++
		if out.truncated {
			// The quota is gone; the partial entry is kept but no further
			// refresh can do better this run.
			s.Logger.Warn("sweep aborted by rate limit", "key", cand.key, "refreshed", summary.Refreshed)
			summary.Aborted = true
			break
		}
	}

	s.Logger.Info("sweep complete",
		"scanned", summary.Scanned,
		"refreshed", summary.Refreshed,
		"skipped", summary.Skipped,
		"locked", summary.Locked,
		"errors", summary.Errors,
		"aborted", summary.Aborted)
	return summary, nil
}

// refreshOutcome describes one attempted refresh.
type refreshOutcome struct {
	// lockHeld: another holder is already refreshing this key.
	lockHeld bool
	// truncated: the refresh wrote an entry cut short by rate limiting.
	// The client retries and absorbs rate limits into partial results
	// rather than surfacing them as errors, so this flag is how quota
	// exhaustion reaches the sweep.
	truncated bool
}

// refresh re-runs the full pipeline for one key under its advisory lock.
func (s *Sweeper) refresh(ctx context.Context, key string) (refreshOutcome, error) {
	platform, name, err := cache.ParseKey(key)
	if err != nil {
		return refreshOutcome{}, err
	}
	strat, ok := ecosystems.Lookup(platform)
	if !ok {
		return refreshOutcome{}, errors.New(errors.ErrCodeInvalidPlatform, "unknown platform %q", platform)
	}

	won, err := cache.AcquireLock(ctx, s.Store, key)
	if err != nil {
		return refreshOutcome{}, err
	}
	if !won {
		return refreshOutcome{lockHeld: true}, nil
	}
	defer func() {
		if rerr := cache.ReleaseLock(ctx, s.Store, key); rerr != nil {
			s.Logger.Warn("lock release failed", "key", key, "err", rerr)
		}
	}()

	now := s.now()
	entry, err := pipeline.RefreshDependents(ctx, s.GitHub, strat, name, s.Limits, now)
	if err != nil {
		return refreshOutcome{}, err
	}
	if err := cache.Write(ctx, s.Store, key, entry); err != nil {
		return refreshOutcome{}, err
	}
	if err := history.Append(ctx, s.Store, key, entry, now); err != nil {
		s.Logger.Warn("history append failed", "key", key, "err", err)
	}
	return refreshOutcome{truncated: entry.Partial}, nil
}

// metaFromValue reads the entry body for keys written before metadata was
// stored alongside values. Unreadable entries yield nil.
func (s *Sweeper) metaFromValue(ctx context.Context, key string) *cache.Metadata {
	value, _, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil
	}
	var entry cache.Entry
	if err := json.Unmarshal(value, &entry); err != nil {
		return nil
	}
	return entry.Metadata()
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
