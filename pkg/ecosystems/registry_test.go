package ecosystems

import (
	"context"
	"regexp"
	"testing"
)

// stubStrategy is a minimal Strategy for registry tests.
type stubStrategy struct {
	slug string
}

func (s stubStrategy) Slug() string                          { return s.slug }
func (s stubStrategy) ManifestFile() string                  { return "manifest" }
func (s stubStrategy) BuildSearchQuery(name string) string   { return name }
func (s stubStrategy) IsDependency(_, _ string) DepMatch     { return DepMatch{} }
func (s stubStrategy) ResolveRepo(context.Context, string) *Repo { return nil }
func (s stubStrategy) Exists(context.Context, string) (bool, error) { return true, nil }
func (s stubStrategy) NamePattern() *regexp.Regexp           { return regexp.MustCompile(`.`) }

func TestRegisterRejectsDuplicates(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	if err := Register(stubStrategy{slug: "test"}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := Register(stubStrategy{slug: "test"}); err == nil {
		t.Fatal("expected error registering duplicate slug, got nil")
	}
}

func TestLookup(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	MustRegister(stubStrategy{slug: "npm"})

	if _, ok := Lookup("npm"); !ok {
		t.Error("Lookup(npm) not found after registration")
	}
	if _, ok := Lookup("unknown"); ok {
		t.Error("Lookup(unknown) unexpectedly found")
	}
}

func TestSlugsSorted(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	MustRegister(stubStrategy{slug: "rubygems"})
	MustRegister(stubStrategy{slug: "crates"})
	MustRegister(stubStrategy{slug: "npm"})

	got := Slugs()
	want := []string{"crates", "npm", "rubygems"}
	if len(got) != len(want) {
		t.Fatalf("Slugs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Slugs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
