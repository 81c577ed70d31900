package scheduled

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	gh "github.com/google/go-github/v66/github"

	"github.com/matzehuels/usedby/pkg/cache"
	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/github"
	"github.com/matzehuels/usedby/pkg/pipeline"
)

var sweepNow = time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)

const sweepPlatform = "fakeco"

type sweepStrategy struct{}

func (sweepStrategy) Slug() string                        { return sweepPlatform }
func (sweepStrategy) ManifestFile() string                { return "deps.txt" }
func (sweepStrategy) BuildSearchQuery(name string) string { return name }
func (sweepStrategy) NamePattern() *regexp.Regexp         { return regexp.MustCompile(`.+`) }

func (sweepStrategy) IsDependency(manifest, name string) ecosystems.DepMatch {
	return ecosystems.DepMatch{Found: true}
}

func (sweepStrategy) ResolveRepo(ctx context.Context, name string) *ecosystems.Repo { return nil }
func (sweepStrategy) Exists(ctx context.Context, name string) (bool, error)         { return true, nil }

// sweepGitHub records refresh order by package name and can fail or report
// rate-limit truncation per name.
type sweepGitHub struct {
	searched []string
	errs     map[string]error
	limited  map[string]bool
}

func (g *sweepGitHub) SearchDependents(ctx context.Context, query string, maxPages int, pageDelay time.Duration) (*github.SearchResult, error) {
	g.searched = append(g.searched, query)
	if err := g.errs[query]; err != nil {
		return nil, err
	}
	return &github.SearchResult{RateLimited: g.limited[query]}, nil
}

func (g *sweepGitHub) EnrichDependents(ctx context.Context, candidates []github.DependentRepo, manifestFile string, verify github.VerifyFunc, batchSize, concurrency int) (*github.EnrichResult, error) {
	return &github.EnrichResult{}, nil
}

func (g *sweepGitHub) DependentCount(ctx context.Context, owner, repo string) (int, bool) {
	return 0, false
}

func newSweeper(t *testing.T, store cache.Store, g *sweepGitHub) *Sweeper {
	t.Helper()
	ecosystems.Reset()
	t.Cleanup(ecosystems.Reset)
	ecosystems.MustRegister(sweepStrategy{})

	return &Sweeper{
		Store:  store,
		GitHub: g,
		Limits: pipeline.DevLimits,
		Logger: log.New(io.Discard),
		Now:    func() time.Time { return sweepNow },
	}
}

func writeEntry(t *testing.T, store cache.Store, name string, entry *cache.Entry) {
	t.Helper()
	if err := cache.Write(t.Context(), store, cache.BuildKey(sweepPlatform, name), entry); err != nil {
		t.Fatalf("Write %s: %v", name, err)
	}
}

func entryAged(age time.Duration, partial bool) *cache.Entry {
	fetched := sweepNow.Add(-age)
	return &cache.Entry{
		Repos:          []github.ScoredRepo{},
		FetchedAt:      fetched,
		LastAccessedAt: fetched,
		Partial:        partial,
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestSweepClassification(t *testing.T) {
	store := cache.NewMemoryStore()
	g := &sweepGitHub{}
	sweeper := newSweeper(t, store, g)

	writeEntry(t, store, "fresh", entryAged(time.Hour, false))
	writeEntry(t, store, "stale", entryAged(30*time.Hour, false))
	// Partial entries go stale at the tighter window.
	writeEntry(t, store, "partial-mid", entryAged(15*time.Hour, true))
	writeEntry(t, store, "partial-fresh", entryAged(time.Hour, true))

	pending := &cache.Entry{FetchedAt: sweepNow.Add(-48 * time.Hour), Pending: true}
	writeEntry(t, store, "queued", pending)

	// History series and locks must not be scanned as entries.
	store.Put(t.Context(), cache.HistoryKey("fakeco:stale"), []byte("[]"), nil)
	cache.AcquireLock(t.Context(), store, cache.BuildKey(sweepPlatform, "elsewhere"))

	summary, err := sweeper.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Scanned != 5 {
		t.Errorf("Scanned = %d, want 5 data keys", summary.Scanned)
	}
	if summary.Refreshed != 2 {
		t.Errorf("Refreshed = %d, want 2 (stale + mid-window partial)", summary.Refreshed)
	}
	if summary.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3 (two fresh + pending)", summary.Skipped)
	}
	if summary.Errors != 0 || summary.Aborted {
		t.Errorf("Errors = %d, Aborted = %v", summary.Errors, summary.Aborted)
	}
}

func TestSweepOrdersPartialFirstThenOldest(t *testing.T) {
	store := cache.NewMemoryStore()
	g := &sweepGitHub{}
	sweeper := newSweeper(t, store, g)

	writeEntry(t, store, "full-older", entryAged(50*time.Hour, false))
	writeEntry(t, store, "full-newer", entryAged(26*time.Hour, false))
	writeEntry(t, store, "partial-newer", entryAged(13*time.Hour, true))
	writeEntry(t, store, "partial-older", entryAged(20*time.Hour, true))

	if _, err := sweeper.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"partial-older", "partial-newer", "full-older", "full-newer"}
	if len(g.searched) != len(want) {
		t.Fatalf("refreshed %v, want %v", g.searched, want)
	}
	for i := range want {
		if g.searched[i] != want[i] {
			t.Errorf("position %d: refreshed %s, want %s", i, g.searched[i], want[i])
		}
	}
}

func TestSweepCapsRefreshes(t *testing.T) {
	store := cache.NewMemoryStore()
	g := &sweepGitHub{}
	sweeper := newSweeper(t, store, g)

	for i := range MaxRefreshesPerRun + 3 {
		writeEntry(t, store, fmt.Sprintf("pkg%d", i), entryAged(30*time.Hour, false))
	}

	summary, err := sweeper.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Refreshed != MaxRefreshesPerRun {
		t.Errorf("Refreshed = %d, want cap %d", summary.Refreshed, MaxRefreshesPerRun)
	}
	if len(g.searched) != MaxRefreshesPerRun {
		t.Errorf("pipeline ran %d times, want %d", len(g.searched), MaxRefreshesPerRun)
	}
}

func TestSweepAbortsOnRateLimit(t *testing.T) {
	store := cache.NewMemoryStore()
	g := &sweepGitHub{errs: map[string]error{"b": &gh.RateLimitError{}}}
	sweeper := newSweeper(t, store, g)

	// Ages force refresh order a, b, c; b trips the rate limit.
	writeEntry(t, store, "a", entryAged(72*time.Hour, false))
	writeEntry(t, store, "b", entryAged(48*time.Hour, false))
	writeEntry(t, store, "c", entryAged(30*time.Hour, false))

	summary, err := sweeper.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Aborted {
		t.Error("Aborted not set")
	}
	if summary.Refreshed != 1 {
		t.Errorf("Refreshed = %d, want 1 before the abort", summary.Refreshed)
	}
	if len(g.searched) != 2 {
		t.Errorf("pipeline ran %d times, want 2 (c never attempted)", len(g.searched))
	}
	// The aborted refresh must not leave its lock behind.
	if locked, _ := cache.IsLocked(t.Context(), store, cache.BuildKey(sweepPlatform, "b")); locked {
		t.Error("lock leaked by the aborted refresh")
	}
}

func TestSweepAbortsOnTruncatedRefresh(t *testing.T) {
	store := cache.NewMemoryStore()
	// The real client never surfaces rate limits as errors: it retries,
	// gives up, and hands back a truncated result instead. The sweep must
	// still stop burning its cap on those.
	g := &sweepGitHub{limited: map[string]bool{"b": true}}
	sweeper := newSweeper(t, store, g)

	writeEntry(t, store, "a", entryAged(72*time.Hour, false))
	writeEntry(t, store, "b", entryAged(48*time.Hour, false))
	writeEntry(t, store, "c", entryAged(30*time.Hour, false))

	summary, err := sweeper.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Aborted {
		t.Error("Aborted not set")
	}
	if summary.Refreshed != 2 {
		t.Errorf("Refreshed = %d, want 2 (the truncated entry still counts)", summary.Refreshed)
	}
	if len(g.searched) != 2 {
		t.Errorf("pipeline ran %d times, want 2 (c never attempted)", len(g.searched))
	}

	// What was gathered before the cutoff is kept, marked partial.
	read, err := cache.Read(t.Context(), store, cache.BuildKey(sweepPlatform, "b"), sweepNow)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if read.Entry == nil || !read.Entry.Partial {
		t.Errorf("entry = %+v, want the partial result persisted", read.Entry)
	}
	if locked, _ := cache.IsLocked(t.Context(), store, cache.BuildKey(sweepPlatform, "b")); locked {
		t.Error("lock leaked by the aborting refresh")
	}
}

func TestSweepContinuesPastOrdinaryErrors(t *testing.T) {
	store := cache.NewMemoryStore()
	g := &sweepGitHub{errs: map[string]error{"a": fmt.Errorf("boom")}}
	sweeper := newSweeper(t, store, g)

	writeEntry(t, store, "a", entryAged(72*time.Hour, false))
	writeEntry(t, store, "b", entryAged(30*time.Hour, false))

	summary, err := sweeper.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Errors != 1 || summary.Refreshed != 1 || summary.Aborted {
		t.Errorf("summary = %+v, want one error, one refresh, no abort", summary)
	}
}

func TestSweepSkipsLockedKeys(t *testing.T) {
	store := cache.NewMemoryStore()
	g := &sweepGitHub{}
	sweeper := newSweeper(t, store, g)

	writeEntry(t, store, "busy", entryAged(30*time.Hour, false))
	cache.AcquireLock(t.Context(), store, cache.BuildKey(sweepPlatform, "busy"))

	summary, err := sweeper.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// A held lock means someone else is doing the work; it is reported
	// separately, not as a refresh this run performed.
	if summary.Locked != 1 {
		t.Errorf("Locked = %d, want 1", summary.Locked)
	}
	if summary.Refreshed != 0 || summary.Errors != 0 {
		t.Errorf("Refreshed = %d, Errors = %d, want 0, 0", summary.Refreshed, summary.Errors)
	}
	if len(g.searched) != 0 {
		t.Errorf("pipeline ran %d times, want 0", len(g.searched))
	}
}

func TestSweepFallsBackToValueForMissingMeta(t *testing.T) {
	store := cache.NewMemoryStore()
	g := &sweepGitHub{}
	sweeper := newSweeper(t, store, g)

	// Simulate an entry written before metadata existed.
	entry := entryAged(30*time.Hour, false)
	value := mustJSON(t, entry)
	store.Put(t.Context(), cache.BuildKey(sweepPlatform, "legacy"), value, nil)

	// And one whose value is unreadable.
	store.Put(t.Context(), cache.BuildKey(sweepPlatform, "mangled"), []byte("{oops"), nil)

	summary, err := sweeper.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Refreshed != 1 {
		t.Errorf("Refreshed = %d, want 1 (legacy entry classified from its body)", summary.Refreshed)
	}
	if summary.Errors != 1 {
		t.Errorf("Errors = %d, want 1 (mangled entry)", summary.Errors)
	}
}
