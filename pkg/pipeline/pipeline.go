// Package pipeline orchestrates one full dependent-discovery run: code
// search for manifest matches, batched enrichment and verification, star
// filtering, and recency-decayed scoring, producing a cache entry ready to
// persist.
package pipeline

import (
	"context"
	"time"

	"github.com/matzehuels/usedby/pkg/cache"
	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/github"
	"github.com/matzehuels/usedby/pkg/observability"
)

// GitHub is the subset of the GitHub client the pipeline drives. Satisfied
// by [github.Client]; tests substitute fakes.
type GitHub interface {
	SearchDependents(ctx context.Context, query string, maxPages int, pageDelay time.Duration) (*github.SearchResult, error)
	EnrichDependents(ctx context.Context, candidates []github.DependentRepo, manifestFile string, verify github.VerifyFunc, batchSize, concurrency int) (*github.EnrichResult, error)
	DependentCount(ctx context.Context, owner, repo string) (int, bool)
}

// RefreshDependents runs the full pipeline for one package and returns the
// entry to cache. A rate-limit truncation in either stage yields a partial
// entry holding everything gathered; only hard errors fail the run.
func RefreshDependents(ctx context.Context, gh GitHub, strat ecosystems.Strategy, name string, limits Limits, now time.Time) (*cache.Entry, error) {
	platform := strat.Slug()

	observability.Pipeline().OnSearchStart(ctx, platform, name)
	searchStart := time.Now()
	search, err := gh.SearchDependents(ctx, strat.BuildSearchQuery(name), limits.MaxSearchPages, limits.PageDelay)
	observability.Pipeline().OnSearchComplete(ctx, platform, name, candidateCount(search), time.Since(searchStart), err)
	if err != nil {
		return nil, err
	}

	// Forks are dropped before enrichment so they don't consume the cap;
	// enrichment re-checks the flag with fresher data.
	candidates := make([]github.DependentRepo, 0, len(search.Repos))
	for _, repo := range search.Repos {
		if repo.IsFork {
			continue
		}
		candidates = append(candidates, repo)
		if len(candidates) == limits.EnrichCap {
			break
		}
	}

	verify := func(manifest string) (string, string, bool) {
		m := strat.IsDependency(manifest, name)
		return m.Version, ecosystems.NormalizeDepType(m.DepType), m.Found
	}

	observability.Pipeline().OnEnrichStart(ctx, platform, name, len(candidates))
	enrichStart := time.Now()
	enrich, err := gh.EnrichDependents(ctx, candidates, strat.ManifestFile(), verify, limits.BatchSize, limits.Concurrency)
	observability.Pipeline().OnEnrichComplete(ctx, platform, name, enrichedCount(enrich), time.Since(enrichStart), err)
	if err != nil {
		return nil, err
	}

	scored := ScoreDependents(FilterDependents(enrich.Repos, limits.MinStars), now)
	observability.Pipeline().OnScoreComplete(ctx, platform, name, len(scored))

	entry := &cache.Entry{
		Repos:          scored,
		FetchedAt:      now,
		LastAccessedAt: now,
		Partial:        search.RateLimited || enrich.RateLimited,
	}
	entry.DependentCount = liveCount(ctx, gh, strat, name)
	return entry, nil
}

// RefreshCountOnly produces a count-only entry, used for badge requests on
// packages with no cached data. Count-only entries are always partial so
// the sweep replaces them with full data promptly.
func RefreshCountOnly(ctx context.Context, gh GitHub, strat ecosystems.Strategy, name string, now time.Time) *cache.Entry {
	return &cache.Entry{
		Repos:          []github.ScoredRepo{},
		FetchedAt:      now,
		LastAccessedAt: now,
		Partial:        true,
		CountOnly:      true,
		DependentCount: liveCount(ctx, gh, strat, name),
	}
}

// liveCount resolves the package's repository and scrapes its dependent
// total. Every failure along the way yields nil; the count is best-effort
// garnish, never a reason to fail a refresh.
func liveCount(ctx context.Context, gh GitHub, strat ecosystems.Strategy, name string) *int {
	repo := strat.ResolveRepo(ctx, name)
	if repo == nil {
		return nil
	}
	count, ok := gh.DependentCount(ctx, repo.Owner, repo.Name)
	if !ok {
		return nil
	}
	return &count
}

func candidateCount(r *github.SearchResult) int {
	if r == nil {
		return 0
	}
	return len(r.Repos)
}

func enrichedCount(r *github.EnrichResult) int {
	if r == nil {
		return 0
	}
	return len(r.Repos)
}
