// Package npm implements the dependent-discovery strategy for the npm
// registry. Dependencies are declared in package.json, so matching is exact
// JSON key lookup across the four dependency maps.
package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/registry"
)

// namePattern covers plain and scoped npm names (@scope/name).
var namePattern = regexp.MustCompile(`^(@[a-z0-9~][a-z0-9._~-]*/)?[a-z0-9~][a-z0-9._~-]*$`)

// Strategy implements [ecosystems.Strategy] for npm.
type Strategy struct {
	client  *registry.Client
	baseURL string
}

// New creates the npm strategy backed by registry.npmjs.org.
func New() *Strategy {
	return &Strategy{
		client:  registry.NewClient(nil),
		baseURL: "https://registry.npmjs.org",
	}
}

func (s *Strategy) Slug() string         { return "npm" }
func (s *Strategy) ManifestFile() string { return "package.json" }

func (s *Strategy) NamePattern() *regexp.Regexp { return namePattern }

// BuildSearchQuery targets package.json files that mention the package name.
func (s *Strategy) BuildSearchQuery(name string) string {
	return fmt.Sprintf("%q filename:package.json", name)
}

// IsDependency parses package.json and looks the name up in each dependency
// map. Scoped names work without special handling since map keys are exact.
func (s *Strategy) IsDependency(manifest, name string) ecosystems.DepMatch {
	var pkg struct {
		Dependencies         map[string]string `json:"dependencies"`
		DevDependencies      map[string]string `json:"devDependencies"`
		PeerDependencies     map[string]string `json:"peerDependencies"`
		OptionalDependencies map[string]string `json:"optionalDependencies"`
	}
	if err := json.Unmarshal([]byte(manifest), &pkg); err != nil {
		return ecosystems.DepMatch{}
	}

	sections := []struct {
		deps    map[string]string
		depType string
	}{
		{pkg.Dependencies, ecosystems.DepTypeRuntime},
		{pkg.DevDependencies, ecosystems.DepTypeDev},
		{pkg.PeerDependencies, ecosystems.DepTypePeer},
		{pkg.OptionalDependencies, ecosystems.DepTypeOptional},
	}
	for _, sec := range sections {
		if version, ok := sec.deps[name]; ok {
			return ecosystems.DepMatch{
				Found:   true,
				Version: version,
				DepType: ecosystems.NormalizeDepType(sec.depType),
			}
		}
	}
	return ecosystems.DepMatch{}
}

// ResolveRepo fetches package metadata from the npm registry and extracts the
// GitHub repository from the repository URL or homepage.
func (s *Strategy) ResolveRepo(ctx context.Context, name string) *ecosystems.Repo {
	var data struct {
		Repository any    `json:"repository"`
		Homepage   string `json:"homepage"`
	}
	if err := s.client.Get(ctx, s.packageURL(name), &data); err != nil {
		return nil
	}

	repoURL := registry.NormalizeRepoURL(repositoryURL(data.Repository))
	owner, repo, ok := registry.ExtractGitHubRepo(map[string]string{"Repository": repoURL}, data.Homepage)
	if !ok {
		return nil
	}
	return &ecosystems.Repo{Owner: owner, Name: repo}
}

// Exists probes the npm registry for the package.
func (s *Strategy) Exists(ctx context.Context, name string) (bool, error) {
	return s.client.Exists(ctx, s.packageURL(name))
}

func (s *Strategy) packageURL(name string) string {
	// Scoped names keep their slash; npm expects @scope%2fname or the raw path.
	return s.baseURL + "/" + strings.ReplaceAll(name, "/", "%2f")
}

// repository fields appear either as a plain URL string or as {type, url}.
func repositoryURL(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val["url"].(string); ok {
			return s
		}
	}
	return ""
}

var _ ecosystems.Strategy = (*Strategy)(nil)
