// Package ecosystems defines the per-platform policy for dependent discovery:
// how to query a code-search engine, how to recognize a dependency inside a
// manifest file, and how to resolve a package name to its source repository.
//
// Each supported package ecosystem (npm, PyPI, crates.io, RubyGems, Packagist,
// Go modules) implements [Strategy] in its own sub-package. Implementations
// are pure except for the registry lookups (ResolveRepo, Exists).
//
// A process-wide registry maps a platform slug to its strategy. Strategies
// are registered explicitly at startup; registering the same slug twice is a
// programming error and fails loudly.
package ecosystems

import (
	"context"
	"regexp"
)

// Dependency categories as they appear in manifests. For display, categories
// are normalized down to DepTypeRuntime or DepTypeDev via [NormalizeDepType].
const (
	DepTypeRuntime  = "dependencies"
	DepTypeDev      = "devDependencies"
	DepTypePeer     = "peerDependencies"
	DepTypeOptional = "optionalDependencies"
)

// DepMatch is the result of checking a manifest for a dependency declaration.
type DepMatch struct {
	Found   bool   // whether the package is declared
	Version string // declared version constraint, if the format records one
	DepType string // dependency category, normalized for display
}

// Repo identifies a GitHub repository.
type Repo struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// Strategy is the per-ecosystem policy contract.
//
// BuildSearchQuery and IsDependency are pure functions. ResolveRepo and
// Exists call the ecosystem's package registry.
type Strategy interface {
	// Slug returns the platform identifier (e.g. "npm", "pypi").
	Slug() string

	// ManifestFile returns the manifest filename this ecosystem declares
	// dependencies in (e.g. "package.json").
	ManifestFile() string

	// BuildSearchQuery returns a code-search query string that targets the
	// ecosystem's manifest filename.
	BuildSearchQuery(name string) string

	// IsDependency parses manifest text and reports whether name is declared
	// as a dependency, distinguishing dependency categories where the format
	// supports it. Unparseable manifests report Found=false, never an error.
	IsDependency(manifest, name string) DepMatch

	// ResolveRepo queries the ecosystem's package registry to discover the
	// canonical GitHub repository for name. It returns nil on any resolution
	// failure (missing field, non-GitHub host, network error); it never
	// returns an error to the caller.
	ResolveRepo(ctx context.Context, name string) *Repo

	// Exists probes the registry for the package. Callers treat errors as
	// "exists" (permissive); only a confirmed negative blocks work.
	Exists(ctx context.Context, name string) (bool, error)

	// NamePattern returns the pattern user-supplied package names must match
	// before they reach any external call.
	NamePattern() *regexp.Regexp
}

// NormalizeDepType maps a raw dependency category to one of the two display
// categories. Peer and optional dependencies count as runtime dependencies.
func NormalizeDepType(depType string) string {
	if depType == DepTypeDev {
		return DepTypeDev
	}
	return DepTypeRuntime
}
