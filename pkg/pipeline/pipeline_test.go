package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/github"
)

// fakeGitHub scripts the three pipeline calls and records what it was asked.
type fakeGitHub struct {
	searchResult *github.SearchResult
	searchErr    error

	enrichResult *github.EnrichResult
	enrichErr    error
	enriched     []github.DependentRepo
	verify       github.VerifyFunc

	count   int
	countOK bool
}

func (f *fakeGitHub) SearchDependents(ctx context.Context, query string, maxPages int, pageDelay time.Duration) (*github.SearchResult, error) {
	return f.searchResult, f.searchErr
}

func (f *fakeGitHub) EnrichDependents(ctx context.Context, candidates []github.DependentRepo, manifestFile string, verify github.VerifyFunc, batchSize, concurrency int) (*github.EnrichResult, error) {
	f.enriched = candidates
	f.verify = verify
	if f.enrichErr != nil {
		return nil, f.enrichErr
	}
	if f.enrichResult != nil {
		return f.enrichResult, nil
	}
	return &github.EnrichResult{Repos: candidates}, nil
}

func (f *fakeGitHub) DependentCount(ctx context.Context, owner, repo string) (int, bool) {
	return f.count, f.countOK
}

// fakeStrategy is a minimal platform policy for driving the pipeline.
type fakeStrategy struct {
	repo *ecosystems.Repo
}

func (fakeStrategy) Slug() string                        { return "fake" }
func (fakeStrategy) ManifestFile() string                { return "deps.txt" }
func (fakeStrategy) BuildSearchQuery(name string) string { return name + " filename:deps.txt" }
func (fakeStrategy) NamePattern() *regexp.Regexp         { return regexp.MustCompile(`^[a-z-]+$`) }

func (fakeStrategy) IsDependency(manifest, name string) ecosystems.DepMatch {
	if strings.Contains(manifest, name) {
		return ecosystems.DepMatch{Found: true, Version: "1.0", DepType: ecosystems.DepTypePeer}
	}
	return ecosystems.DepMatch{}
}

func (s fakeStrategy) ResolveRepo(ctx context.Context, name string) *ecosystems.Repo {
	return s.repo
}

func (fakeStrategy) Exists(ctx context.Context, name string) (bool, error) { return true, nil }

func repos(n int, fork bool) []github.DependentRepo {
	out := make([]github.DependentRepo, n)
	for i := range out {
		out[i] = github.DependentRepo{
			FullName: fmt.Sprintf("user%d/repo", i),
			Stars:    100,
			LastPush: "2026-08-01T00:00:00Z",
			IsFork:   fork,
		}
	}
	return out
}

func testLimits() Limits {
	return Limits{MaxSearchPages: 1, EnrichCap: 10, BatchSize: 10, Concurrency: 1}
}

func TestRefreshDependents(t *testing.T) {
	now := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)
	gh := &fakeGitHub{
		searchResult: &github.SearchResult{Repos: repos(3, false), TotalCount: 3},
		count:        321,
		countOK:      true,
	}
	strat := fakeStrategy{repo: &ecosystems.Repo{Owner: "o", Name: "r"}}

	entry, err := RefreshDependents(t.Context(), gh, strat, "mypkg", testLimits(), now)
	if err != nil {
		t.Fatalf("RefreshDependents: %v", err)
	}
	if len(entry.Repos) != 3 {
		t.Errorf("got %d repos, want 3", len(entry.Repos))
	}
	if entry.Partial || entry.CountOnly {
		t.Errorf("Partial = %v, CountOnly = %v, want false, false", entry.Partial, entry.CountOnly)
	}
	if !entry.FetchedAt.Equal(now) || !entry.LastAccessedAt.Equal(now) {
		t.Errorf("timestamps = %v / %v, want %v", entry.FetchedAt, entry.LastAccessedAt, now)
	}
	if entry.DependentCount == nil || *entry.DependentCount != 321 {
		t.Errorf("DependentCount = %v, want 321", entry.DependentCount)
	}
}

func TestRefreshDependentsVerifyNormalizesDepType(t *testing.T) {
	gh := &fakeGitHub{searchResult: &github.SearchResult{Repos: repos(1, false)}}
	strat := fakeStrategy{}

	if _, err := RefreshDependents(t.Context(), gh, strat, "mypkg", testLimits(), time.Now()); err != nil {
		t.Fatalf("RefreshDependents: %v", err)
	}

	version, depType, ok := gh.verify("manifest declaring mypkg")
	if !ok || version != "1.0" {
		t.Fatalf("verify = %q, %q, %v", version, depType, ok)
	}
	if depType != ecosystems.DepTypeRuntime {
		t.Errorf("depType = %q, want peer normalized to %q", depType, ecosystems.DepTypeRuntime)
	}
	if _, _, ok := gh.verify("unrelated manifest"); ok {
		t.Error("verify accepted a manifest without the package")
	}
}

func TestRefreshDependentsCapsAndExcludesForks(t *testing.T) {
	// 5 forks followed by 20 real repos against a cap of 10: forks must not
	// consume cap slots, and only 10 candidates reach enrichment.
	search := append(repos(5, true), repos(20, false)...)
	gh := &fakeGitHub{searchResult: &github.SearchResult{Repos: search}}

	if _, err := RefreshDependents(t.Context(), gh, fakeStrategy{}, "mypkg", testLimits(), time.Now()); err != nil {
		t.Fatalf("RefreshDependents: %v", err)
	}
	if len(gh.enriched) != 10 {
		t.Fatalf("enriched %d candidates, want 10", len(gh.enriched))
	}
	for _, repo := range gh.enriched {
		if repo.IsFork {
			t.Errorf("fork %s reached enrichment", repo.FullName)
		}
	}
}

func TestRefreshDependentsPartialFromEitherStage(t *testing.T) {
	tests := []struct {
		name               string
		searchRL, enrichRL bool
		want               bool
	}{
		{"clean run", false, false, false},
		{"search rate limited", true, false, true},
		{"enrich rate limited", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gh := &fakeGitHub{
				searchResult: &github.SearchResult{Repos: repos(2, false), RateLimited: tt.searchRL},
				enrichResult: &github.EnrichResult{Repos: repos(2, false), RateLimited: tt.enrichRL},
			}
			entry, err := RefreshDependents(t.Context(), gh, fakeStrategy{}, "mypkg", testLimits(), time.Now())
			if err != nil {
				t.Fatalf("RefreshDependents: %v", err)
			}
			if entry.Partial != tt.want {
				t.Errorf("Partial = %v, want %v", entry.Partial, tt.want)
			}
		})
	}
}

func TestRefreshDependentsPropagatesHardErrors(t *testing.T) {
	boom := errors.New("boom")

	gh := &fakeGitHub{searchErr: boom}
	if _, err := RefreshDependents(t.Context(), gh, fakeStrategy{}, "mypkg", testLimits(), time.Now()); !errors.Is(err, boom) {
		t.Errorf("search error: got %v, want %v", err, boom)
	}

	gh = &fakeGitHub{searchResult: &github.SearchResult{Repos: repos(1, false)}, enrichErr: boom}
	if _, err := RefreshDependents(t.Context(), gh, fakeStrategy{}, "mypkg", testLimits(), time.Now()); !errors.Is(err, boom) {
		t.Errorf("enrich error: got %v, want %v", err, boom)
	}
}

func TestRefreshDependentsCountNilOnResolveFailure(t *testing.T) {
	gh := &fakeGitHub{
		searchResult: &github.SearchResult{Repos: repos(1, false)},
		count:        99,
		countOK:      true,
	}
	entry, err := RefreshDependents(t.Context(), gh, fakeStrategy{repo: nil}, "mypkg", testLimits(), time.Now())
	if err != nil {
		t.Fatalf("RefreshDependents: %v", err)
	}
	if entry.DependentCount != nil {
		t.Errorf("DependentCount = %d, want nil when the repo cannot be resolved", *entry.DependentCount)
	}
}

func TestRefreshDependentsCountNilOnScrapeFailure(t *testing.T) {
	gh := &fakeGitHub{
		searchResult: &github.SearchResult{Repos: repos(1, false)},
		countOK:      false,
	}
	strat := fakeStrategy{repo: &ecosystems.Repo{Owner: "o", Name: "r"}}
	entry, err := RefreshDependents(t.Context(), gh, strat, "mypkg", testLimits(), time.Now())
	if err != nil {
		t.Fatalf("RefreshDependents: %v", err)
	}
	if entry.DependentCount != nil {
		t.Errorf("DependentCount = %d, want nil on scrape failure", *entry.DependentCount)
	}
}

func TestRefreshCountOnly(t *testing.T) {
	now := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)
	gh := &fakeGitHub{count: 42, countOK: true}
	strat := fakeStrategy{repo: &ecosystems.Repo{Owner: "o", Name: "r"}}

	entry := RefreshCountOnly(t.Context(), gh, strat, "mypkg", now)
	if !entry.CountOnly || !entry.Partial {
		t.Errorf("CountOnly = %v, Partial = %v, want true, true", entry.CountOnly, entry.Partial)
	}
	if entry.Repos == nil || len(entry.Repos) != 0 {
		t.Errorf("Repos = %v, want empty non-nil slice", entry.Repos)
	}
	if entry.DependentCount == nil || *entry.DependentCount != 42 {
		t.Errorf("DependentCount = %v, want 42", entry.DependentCount)
	}
	if !entry.FetchedAt.Equal(now) {
		t.Errorf("FetchedAt = %v, want %v", entry.FetchedAt, now)
	}
}
