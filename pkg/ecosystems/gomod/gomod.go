// Package gomod implements the dependent-discovery strategy for Go modules.
// go.mod matching is line-based over require directives, with module paths
// normalized to host plus exactly two path segments so that major-version
// suffixes (/v2) and subdirectory modules compare equal to their repository.
package gomod

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/registry"
)

var (
	namePattern = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}(/[A-Za-z0-9._~-]+){1,}$`)

	// requireLine captures a module path and version inside a require block
	// or a single-line require directive.
	requireLine = regexp.MustCompile(`^\s*(?:require\s+)?([a-z0-9.-]+\.[a-z]{2,}(?:/[A-Za-z0-9._~-]+)+)\s+(v\S+)`)
)

// Strategy implements [ecosystems.Strategy] for Go modules.
type Strategy struct {
	client   *registry.Client
	proxyURL string
}

// New creates the Go modules strategy backed by proxy.golang.org.
func New() *Strategy {
	return &Strategy{
		client:   registry.NewClient(nil),
		proxyURL: "https://proxy.golang.org",
	}
}

func (s *Strategy) Slug() string         { return "go" }
func (s *Strategy) ManifestFile() string { return "go.mod" }

func (s *Strategy) NamePattern() *regexp.Regexp { return namePattern }

func (s *Strategy) BuildSearchQuery(name string) string {
	return fmt.Sprintf("%q filename:go.mod", NormalizeModulePath(name))
}

// IsDependency scans go.mod require lines for the module. Both sides are
// normalized to two path segments, so a requirement on
// "github.com/user/repo/v2" matches a lookup for "github.com/user/repo".
func (s *Strategy) IsDependency(manifest, name string) ecosystems.DepMatch {
	want := NormalizeModulePath(name)

	for _, line := range strings.Split(manifest, "\n") {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		m := requireLine.FindStringSubmatch(line)
		if m == nil || NormalizeModulePath(m[1]) != want {
			continue
		}
		return ecosystems.DepMatch{
			Found:   true,
			Version: m[2],
			DepType: ecosystems.DepTypeRuntime,
		}
	}
	return ecosystems.DepMatch{}
}

// ResolveRepo maps a github.com module path directly to its repository
// coordinate. Modules hosted elsewhere (vanity imports, other forges) cannot
// be resolved and report nil.
func (s *Strategy) ResolveRepo(ctx context.Context, name string) *ecosystems.Repo {
	parts := strings.Split(NormalizeModulePath(name), "/")
	if len(parts) != 3 || parts[0] != "github.com" {
		return nil
	}
	return &ecosystems.Repo{Owner: parts[1], Name: parts[2]}
}

// Exists probes the Go module proxy for the module's latest version.
func (s *Strategy) Exists(ctx context.Context, name string) (bool, error) {
	return s.client.Exists(ctx, s.proxyURL+"/"+escapePath(name)+"/@latest")
}

// NormalizeModulePath reduces a module path to its host plus the first two
// path segments, dropping major-version suffixes and subdirectories.
func NormalizeModulePath(path string) string {
	path = strings.TrimSpace(path)
	parts := strings.Split(path, "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, "/")
}

// escapePath applies the module proxy's case encoding: uppercase letters
// become "!" followed by the lowercase letter.
func escapePath(path string) string {
	var b strings.Builder
	for _, r := range path {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('!')
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var _ ecosystems.Strategy = (*Strategy)(nil)
