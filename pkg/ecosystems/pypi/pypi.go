// Package pypi implements the dependent-discovery strategy for PyPI.
// Dependencies are matched against requirements.txt lines with PEP 503
// name normalization: comparison is case-insensitive and treats "-", "_",
// and "." as equivalent separators.
package pypi

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/registry"
)

var (
	namePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)

	// requirementLine captures the leading package token and the remainder
	// (extras, version specifiers, markers).
	requirementLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(\[[^\]]*\])?\s*(.*)$`)

	versionSpec = regexp.MustCompile(`==\s*([^\s;,#]+)`)
)

// Strategy implements [ecosystems.Strategy] for PyPI.
type Strategy struct {
	client  *registry.Client
	baseURL string
}

// New creates the PyPI strategy backed by pypi.org.
func New() *Strategy {
	return &Strategy{
		client:  registry.NewClient(nil),
		baseURL: "https://pypi.org/pypi",
	}
}

func (s *Strategy) Slug() string         { return "pypi" }
func (s *Strategy) ManifestFile() string { return "requirements.txt" }

func (s *Strategy) NamePattern() *regexp.Regexp { return namePattern }

func (s *Strategy) BuildSearchQuery(name string) string {
	return fmt.Sprintf("%q filename:requirements.txt", name)
}

// IsDependency scans requirements.txt lines for the package. Only the full
// leading token counts as a match, so a lookup for "requests" never matches
// a "requests-oauthlib" line.
func (s *Strategy) IsDependency(manifest, name string) ecosystems.DepMatch {
	want := normalize(name)

	for _, line := range strings.Split(manifest, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		m := requirementLine.FindStringSubmatch(line)
		if m == nil || normalize(m[1]) != want {
			continue
		}

		match := ecosystems.DepMatch{Found: true, DepType: ecosystems.DepTypeRuntime}
		if v := versionSpec.FindStringSubmatch(m[3]); v != nil {
			match.Version = v[1]
		}
		return match
	}
	return ecosystems.DepMatch{}
}

// ResolveRepo fetches package metadata from PyPI and extracts the GitHub
// repository from the project URLs or homepage.
func (s *Strategy) ResolveRepo(ctx context.Context, name string) *ecosystems.Repo {
	var data struct {
		Info struct {
			ProjectURLs map[string]string `json:"project_urls"`
			HomePage    string            `json:"home_page"`
		} `json:"info"`
	}
	if err := s.client.Get(ctx, s.packageURL(name), &data); err != nil {
		return nil
	}

	owner, repo, ok := registry.ExtractGitHubRepo(data.Info.ProjectURLs, data.Info.HomePage)
	if !ok {
		return nil
	}
	return &ecosystems.Repo{Owner: owner, Name: repo}
}

// Exists probes PyPI for the package.
func (s *Strategy) Exists(ctx context.Context, name string) (bool, error) {
	return s.client.Exists(ctx, s.packageURL(name))
}

func (s *Strategy) packageURL(name string) string {
	return s.baseURL + "/" + registry.NormalizePkgName(name) + "/json"
}

// normalize applies PEP 503: lowercase with "-", "_", and "." collapsed to "-".
func normalize(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	return strings.ReplaceAll(name, ".", "-")
}

var _ ecosystems.Strategy = (*Strategy)(nil)
