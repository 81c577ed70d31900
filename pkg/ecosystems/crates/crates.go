// Package crates implements the dependent-discovery strategy for crates.io.
// Cargo.toml manifests are parsed as TOML, so dependency matching is exact
// table-key lookup: a lookup for "serde" never matches "serde_json", and the
// dotted-key form ([dependencies.serde]) is handled by the parser.
package crates

import (
	"context"
	"fmt"
	"regexp"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/registry"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// Strategy implements [ecosystems.Strategy] for crates.io.
type Strategy struct {
	client  *registry.Client
	baseURL string
}

// New creates the crates.io strategy.
// The client includes a User-Agent header as required by crates.io API policy.
func New() *Strategy {
	headers := map[string]string{
		"User-Agent": "usedby/1.0 (https://github.com/matzehuels/usedby)",
	}
	return &Strategy{
		client:  registry.NewClient(headers),
		baseURL: "https://crates.io/api/v1",
	}
}

func (s *Strategy) Slug() string         { return "crates" }
func (s *Strategy) ManifestFile() string { return "Cargo.toml" }

func (s *Strategy) NamePattern() *regexp.Regexp { return namePattern }

func (s *Strategy) BuildSearchQuery(name string) string {
	return fmt.Sprintf("%q filename:Cargo.toml", name)
}

// IsDependency parses Cargo.toml and looks the crate up in [dependencies],
// [dev-dependencies], and [build-dependencies]. Dependency entries are either
// a version string or a table with an optional version key.
func (s *Strategy) IsDependency(manifest, name string) ecosystems.DepMatch {
	var doc struct {
		Dependencies      map[string]any `toml:"dependencies"`
		DevDependencies   map[string]any `toml:"dev-dependencies"`
		BuildDependencies map[string]any `toml:"build-dependencies"`
	}
	if _, err := toml.Decode(manifest, &doc); err != nil {
		return ecosystems.DepMatch{}
	}

	sections := []struct {
		deps    map[string]any
		depType string
	}{
		{doc.Dependencies, ecosystems.DepTypeRuntime},
		{doc.DevDependencies, ecosystems.DepTypeDev},
		{doc.BuildDependencies, ecosystems.DepTypeRuntime},
	}
	for _, sec := range sections {
		if entry, ok := sec.deps[name]; ok {
			return ecosystems.DepMatch{
				Found:   true,
				Version: crateVersion(entry),
				DepType: ecosystems.NormalizeDepType(sec.depType),
			}
		}
	}
	return ecosystems.DepMatch{}
}

// crateVersion extracts the version constraint from a dependency entry,
// which is either `serde = "1.0"` or `serde = { version = "1.0", ... }`.
func crateVersion(entry any) string {
	switch v := entry.(type) {
	case string:
		return v
	case map[string]any:
		if ver, ok := v["version"].(string); ok {
			return ver
		}
	}
	return ""
}

// ResolveRepo fetches crate metadata from crates.io and extracts the GitHub
// repository from the repository or homepage URL.
func (s *Strategy) ResolveRepo(ctx context.Context, name string) *ecosystems.Repo {
	var data struct {
		Crate struct {
			Repository string `json:"repository"`
			Homepage   string `json:"homepage"`
		} `json:"crate"`
	}
	if err := s.client.Get(ctx, s.crateURL(name), &data); err != nil {
		return nil
	}

	urls := map[string]string{"Repository": registry.NormalizeRepoURL(data.Crate.Repository)}
	owner, repo, ok := registry.ExtractGitHubRepo(urls, data.Crate.Homepage)
	if !ok {
		return nil
	}
	return &ecosystems.Repo{Owner: owner, Name: repo}
}

// Exists probes crates.io for the crate.
func (s *Strategy) Exists(ctx context.Context, name string) (bool, error) {
	return s.client.Exists(ctx, s.crateURL(name))
}

func (s *Strategy) crateURL(name string) string {
	return s.baseURL + "/crates/" + name
}

var _ ecosystems.Strategy = (*Strategy)(nil)
