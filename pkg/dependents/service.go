// Package dependents is the service layer tying cache, pipeline, and queue
// together: serve cached data instantly, refresh stale data in the
// background under a single-flight lock, and defer cold misses to a queue
// when one is configured.
package dependents

import (
	"context"
	"regexp"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/usedby/pkg/cache"
	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/errors"
	"github.com/matzehuels/usedby/pkg/github"
	"github.com/matzehuels/usedby/pkg/history"
	"github.com/matzehuels/usedby/pkg/observability"
	"github.com/matzehuels/usedby/pkg/pipeline"
	"github.com/matzehuels/usedby/pkg/queue"
)

// Service answers dependent lookups. Queue is optional: without one, cold
// misses run the pipeline inline on the request path.
type Service struct {
	Store  cache.Store
	GitHub pipeline.GitHub
	Queue  queue.Queue
	Limits pipeline.Limits
	Logger *log.Logger

	// Runner executes background touches and refreshes; defaults to one
	// goroutine per task.
	Runner Runner

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Result is the outcome of a dependent lookup.
type Result struct {
	Repos          []github.ScoredRepo `json:"repos"`
	DependentCount *int                `json:"dependentCount,omitempty"`
	Partial        bool                `json:"partial"`
	FetchedAt      time.Time           `json:"fetchedAt,omitzero"`

	// FromCache is false only when this very request ran the pipeline.
	FromCache bool `json:"fromCache"`

	// Refreshing means stale data was served while a background refresh
	// was kicked off.
	Refreshing bool `json:"refreshing"`

	// Pending means the work sits in the queue; callers should poll.
	Pending bool `json:"pending"`
}

// GetDependents serves the ranked dependent list for one package.
//
// Hits return immediately with an async last-accessed touch. Stale entries
// are served as-is while a lock-guarded refresh runs in the background.
// Misses either go through the queue (pending placeholder written first)
// or run the pipeline inline when no queue is configured. Count-only
// entries never satisfy this path.
func (s *Service) GetDependents(ctx context.Context, platform, name string) (*Result, error) {
	strat, err := s.strategyFor(platform, name)
	if err != nil {
		return nil, err
	}
	key := cache.BuildKey(platform, name)
	now := s.now()

	read, err := cache.Read(ctx, s.Store, key, now)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCache, err, "reading cache for %s", key)
	}

	if read.Entry != nil && !read.Entry.CountOnly {
		switch read.Status {
		case cache.StatusHit:
			s.runner().Go(func() { s.touch(key) })
			return resultFrom(read.Entry, true, false), nil
		case cache.StatusStale:
			entry := read.Entry
			s.runner().Go(func() { s.backgroundRefresh(strat, name, key, false) })
			return resultFrom(entry, true, true), nil
		}
	}

	return s.handleMiss(ctx, strat, name, key, now)
}

func (s *Service) handleMiss(ctx context.Context, strat ecosystems.Strategy, name, key string, now time.Time) (*Result, error) {
	// Existence probe is permissive: only a confirmed negative blocks
	// work, so typos don't burn pipeline quota but a flaky registry
	// doesn't block legitimate lookups.
	exists, err := strat.Exists(ctx, name)
	if err == nil && !exists {
		return nil, errors.New(errors.ErrCodePackageNotFound, "package %q not found on %s", name, strat.Slug())
	}

	if s.Queue == nil {
		entry, err := pipeline.RefreshDependents(ctx, s.GitHub, strat, name, s.Limits, now)
		if err != nil {
			return nil, err
		}
		s.persist(ctx, key, entry, now)
		return resultFrom(entry, false, false), nil
	}

	locked, err := cache.IsLocked(ctx, s.Store, key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCache, err, "checking lock for %s", key)
	}
	if locked {
		// A refresh is already in flight; don't enqueue a duplicate.
		return &Result{Repos: []github.ScoredRepo{}, Pending: true}, nil
	}

	won, err := cache.AcquireLock(ctx, s.Store, key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCache, err, "acquiring lock for %s", key)
	}
	if !won {
		return &Result{Repos: []github.ScoredRepo{}, Pending: true}, nil
	}

	placeholder := &cache.Entry{
		Repos:          []github.ScoredRepo{},
		FetchedAt:      now,
		LastAccessedAt: now,
		Pending:        true,
	}
	if err := cache.Write(ctx, s.Store, key, placeholder); err != nil {
		_ = cache.ReleaseLock(ctx, s.Store, key)
		return nil, errors.Wrap(errors.ErrCodeCache, err, "writing pending entry for %s", key)
	}

	msg := queue.NewMessage(strat.Slug(), name)
	if err := s.Queue.Send(ctx, msg); err != nil {
		_ = cache.ReleaseLock(ctx, s.Store, key)
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "enqueueing refresh for %s", key)
	}
	observability.Queue().OnEnqueue(ctx, strat.Slug(), name)
	return &Result{Repos: []github.ScoredRepo{}, Pending: true}, nil
}

// GetDependentCountForBadge is the cheap count-only read path. It returns
// nil for "unknown", never zero as a stand-in. Misses and stale count-only
// entries refresh via the count-only pipeline rather than the full one.
func (s *Service) GetDependentCountForBadge(ctx context.Context, platform, name string) (*int, error) {
	strat, err := s.strategyFor(platform, name)
	if err != nil {
		return nil, err
	}
	key := cache.BuildKey(platform, name)
	now := s.now()

	read, err := cache.Read(ctx, s.Store, key, now)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCache, err, "reading cache for %s", key)
	}

	if read.Entry != nil {
		if read.Status == cache.StatusStale {
			entry := read.Entry
			s.runner().Go(func() { s.backgroundRefresh(strat, name, key, entry.CountOnly) })
		}
		return badgeCount(read.Entry), nil
	}

	entry := pipeline.RefreshCountOnly(ctx, s.GitHub, strat, name, now)
	s.persist(ctx, key, entry, now)
	return badgeCount(entry), nil
}

// backgroundRefresh refreshes one key off the request path. It skips
// entirely when another holder has the lock, and swallows every failure
// after touching lastAccessedAt so the stale entry doesn't look abandoned.
func (s *Service) backgroundRefresh(strat ecosystems.Strategy, name, key string, countOnly bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	won, err := cache.AcquireLock(ctx, s.Store, key)
	if err != nil || !won {
		if err != nil {
			s.Logger.Warn("background refresh lock check failed", "key", key, "err", err)
		}
		return
	}
	defer func() {
		if rerr := cache.ReleaseLock(ctx, s.Store, key); rerr != nil {
			s.Logger.Warn("lock release failed", "key", key, "err", rerr)
		}
	}()

	now := s.now()
	var entry *cache.Entry
	if countOnly {
		entry = pipeline.RefreshCountOnly(ctx, s.GitHub, strat, name, now)
	} else {
		entry, err = pipeline.RefreshDependents(ctx, s.GitHub, strat, name, s.Limits, now)
	}
	if err != nil {
		s.Logger.Warn("background refresh failed", "key", key, "err", err)
		if terr := cache.TouchLastAccessed(ctx, s.Store, key, now); terr != nil {
			s.Logger.Warn("touch failed", "key", key, "err", terr)
		}
		return
	}
	s.persist(ctx, key, entry, now)
}

// persist writes the entry and appends its history snapshot. A history
// failure is logged, not propagated: the cache write already succeeded and
// the series self-heals on the next refresh.
func (s *Service) persist(ctx context.Context, key string, entry *cache.Entry, now time.Time) {
	if err := cache.Write(ctx, s.Store, key, entry); err != nil {
		s.Logger.Error("cache write failed", "key", key, "err", err)
		return
	}
	if err := history.Append(ctx, s.Store, key, entry, now); err != nil {
		s.Logger.Warn("history append failed", "key", key, "err", err)
	}
}

func (s *Service) touch(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := cache.TouchLastAccessed(ctx, s.Store, key, s.now()); err != nil {
		s.Logger.Warn("touch failed", "key", key, "err", err)
	}
}

func (s *Service) strategyFor(platform, name string) (ecosystems.Strategy, error) {
	strat, ok := ecosystems.Lookup(platform)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidPlatform, "unsupported platform %q", platform)
	}
	if !validName(strat.NamePattern(), name) {
		return nil, errors.New(errors.ErrCodeInvalidPackage, "invalid package name %q for %s", name, platform)
	}
	return strat, nil
}

func validName(pattern *regexp.Regexp, name string) bool {
	return name != "" && pattern.MatchString(name)
}

func (s *Service) runner() Runner {
	if s.Runner != nil {
		return s.Runner
	}
	return GoRunner{}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func resultFrom(entry *cache.Entry, fromCache, refreshing bool) *Result {
	repos := entry.Repos
	if repos == nil {
		repos = []github.ScoredRepo{}
	}
	return &Result{
		Repos:          repos,
		DependentCount: entry.DependentCount,
		Partial:        entry.Partial,
		FetchedAt:      entry.FetchedAt,
		FromCache:      fromCache,
		Refreshing:     refreshing,
	}
}

// badgeCount prefers the live total, falls back to the repo-list length for
// full entries, and reports unknown for count-only entries with no count.
func badgeCount(entry *cache.Entry) *int {
	if entry.DependentCount != nil {
		return entry.DependentCount
	}
	if entry.CountOnly {
		return nil
	}
	n := len(entry.Repos)
	return &n
}
