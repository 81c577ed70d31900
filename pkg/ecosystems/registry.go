package ecosystems

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	strategies = make(map[string]Strategy)
)

// Register adds a strategy to the process-wide registry under its slug.
// Registering a slug twice is a programming error and returns an error
// rather than silently overriding the earlier registration.
func Register(s Strategy) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	slug := s.Slug()
	if _, dup := strategies[slug]; dup {
		return fmt.Errorf("ecosystems: strategy %q already registered", slug)
	}
	strategies[slug] = s
	return nil
}

// MustRegister registers a strategy and panics on duplicate slugs.
// Intended for startup wiring where a duplicate means a coding mistake.
func MustRegister(s Strategy) {
	if err := Register(s); err != nil {
		panic(err)
	}
}

// Lookup returns the strategy for a platform slug.
func Lookup(slug string) (Strategy, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := strategies[slug]
	return s, ok
}

// Slugs returns the registered platform slugs in sorted order.
func Slugs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	slugs := make([]string, 0, len(strategies))
	for slug := range strategies {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Reset removes all registered strategies.
// This is primarily useful for testing.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	strategies = make(map[string]Strategy)
}
