// Package packagist implements the dependent-discovery strategy for
// Packagist (PHP/Composer). Dependencies are declared in composer.json, so
// matching is exact JSON key lookup across require and require-dev.
package packagist

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/registry"
)

// namePattern follows Composer's vendor/package format.
var namePattern = regexp.MustCompile(`^[a-z0-9]([_.-]?[a-z0-9]+)*/[a-z0-9](([_.]|-{1,2})?[a-z0-9]+)*$`)

// Strategy implements [ecosystems.Strategy] for Packagist.
type Strategy struct {
	client  *registry.Client
	baseURL string
}

// New creates the Packagist strategy backed by packagist.org.
func New() *Strategy {
	return &Strategy{
		client:  registry.NewClient(nil),
		baseURL: "https://packagist.org",
	}
}

func (s *Strategy) Slug() string         { return "packagist" }
func (s *Strategy) ManifestFile() string { return "composer.json" }

func (s *Strategy) NamePattern() *regexp.Regexp { return namePattern }

func (s *Strategy) BuildSearchQuery(name string) string {
	return fmt.Sprintf("%q filename:composer.json", name)
}

// IsDependency parses composer.json and looks the name up in require and
// require-dev. Platform requirements (php, ext-*, lib-*) never collide with
// vendor/package names, so no filtering is needed here.
func (s *Strategy) IsDependency(manifest, name string) ecosystems.DepMatch {
	var pkg struct {
		Require    map[string]string `json:"require"`
		RequireDev map[string]string `json:"require-dev"`
	}
	if err := json.Unmarshal([]byte(manifest), &pkg); err != nil {
		return ecosystems.DepMatch{}
	}

	name = strings.ToLower(name)
	if version, ok := pkg.Require[name]; ok {
		return ecosystems.DepMatch{Found: true, Version: version, DepType: ecosystems.DepTypeRuntime}
	}
	if version, ok := pkg.RequireDev[name]; ok {
		return ecosystems.DepMatch{Found: true, Version: version, DepType: ecosystems.DepTypeDev}
	}
	return ecosystems.DepMatch{}
}

// ResolveRepo fetches package metadata from Packagist and extracts the GitHub
// repository from the repository URL.
func (s *Strategy) ResolveRepo(ctx context.Context, name string) *ecosystems.Repo {
	var data struct {
		Package struct {
			Repository string `json:"repository"`
		} `json:"package"`
	}
	if err := s.client.Get(ctx, s.packageURL(name), &data); err != nil {
		return nil
	}

	urls := map[string]string{"Repository": registry.NormalizeRepoURL(data.Package.Repository)}
	owner, repo, ok := registry.ExtractGitHubRepo(urls, "")
	if !ok {
		return nil
	}
	return &ecosystems.Repo{Owner: owner, Name: repo}
}

// Exists probes Packagist for the package.
func (s *Strategy) Exists(ctx context.Context, name string) (bool, error) {
	return s.client.Exists(ctx, s.packageURL(name))
}

func (s *Strategy) packageURL(name string) string {
	return s.baseURL + "/packages/" + strings.ToLower(strings.TrimSpace(name)) + ".json"
}

var _ ecosystems.Strategy = (*Strategy)(nil)
