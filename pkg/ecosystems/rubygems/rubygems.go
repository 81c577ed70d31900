// Package rubygems implements the dependent-discovery strategy for RubyGems.
// Gemfile matching is line-based: a `gem "name"` declaration with the exact
// gem name, tolerating leading indentation inside group blocks.
package rubygems

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/registry"
)

var (
	namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

	// gemLine matches `gem 'name'` / `gem "name"` with optional leading
	// whitespace, capturing the gem name and the rest of the line.
	gemLine = regexp.MustCompile(`^\s*gem\s+['"]([A-Za-z0-9._-]+)['"](.*)$`)

	gemVersion = regexp.MustCompile(`,\s*['"]([^'"]+)['"]`)
)

// Strategy implements [ecosystems.Strategy] for RubyGems.
type Strategy struct {
	client  *registry.Client
	baseURL string
}

// New creates the RubyGems strategy backed by rubygems.org.
func New() *Strategy {
	return &Strategy{
		client:  registry.NewClient(nil),
		baseURL: "https://rubygems.org/api/v1",
	}
}

func (s *Strategy) Slug() string         { return "rubygems" }
func (s *Strategy) ManifestFile() string { return "Gemfile" }

func (s *Strategy) NamePattern() *regexp.Regexp { return namePattern }

func (s *Strategy) BuildSearchQuery(name string) string {
	return fmt.Sprintf("%q filename:Gemfile", name)
}

// IsDependency scans Gemfile lines for a `gem "name"` declaration. The
// captured gem name must equal the lookup exactly, so "rails" never matches
// a "rails-html-sanitizer" line.
func (s *Strategy) IsDependency(manifest, name string) ecosystems.DepMatch {
	for _, line := range strings.Split(manifest, "\n") {
		m := gemLine.FindStringSubmatch(line)
		if m == nil || m[1] != name {
			continue
		}

		match := ecosystems.DepMatch{Found: true, DepType: ecosystems.DepTypeRuntime}
		if v := gemVersion.FindStringSubmatch(m[2]); v != nil {
			match.Version = v[1]
		}
		return match
	}
	return ecosystems.DepMatch{}
}

// ResolveRepo fetches gem metadata from RubyGems and extracts the GitHub
// repository from the source code or homepage URI.
func (s *Strategy) ResolveRepo(ctx context.Context, name string) *ecosystems.Repo {
	var data struct {
		SourceCodeURI string `json:"source_code_uri"`
		HomepageURI   string `json:"homepage_uri"`
	}
	if err := s.client.Get(ctx, s.gemURL(name), &data); err != nil {
		return nil
	}

	urls := map[string]string{"Source": data.SourceCodeURI}
	owner, repo, ok := registry.ExtractGitHubRepo(urls, data.HomepageURI)
	if !ok {
		return nil
	}
	return &ecosystems.Repo{Owner: owner, Name: repo}
}

// Exists probes RubyGems for the gem.
func (s *Strategy) Exists(ctx context.Context, name string) (bool, error) {
	return s.client.Exists(ctx, s.gemURL(name))
}

func (s *Strategy) gemURL(name string) string {
	return s.baseURL + "/gems/" + strings.ToLower(strings.TrimSpace(name)) + ".json"
}

var _ ecosystems.Strategy = (*Strategy)(nil)
