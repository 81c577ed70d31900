package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-process runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

type memEntry struct {
	value     []byte
	meta      *Metadata
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, *Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil, nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), copyMeta(e.meta), nil
}

func (s *MemoryStore) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	return copyMeta(e.meta), nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, meta *Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memEntry{
		value: append([]byte(nil), value...),
		meta:  copyMeta(meta),
	}
	return nil
}

func (s *MemoryStore) PutMetadata(ctx context.Context, key string, meta *Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.live(key); ok {
		e.meta = copyMeta(meta)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// List pages through keys in lexicographic order. The cursor is the last
// key of the previous page.
func (s *MemoryStore) List(ctx context.Context, cursor string, limit int) (*ListPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if _, ok := s.live(key); !ok {
			continue
		}
		if cursor == "" || key > cursor {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	page := &ListPage{}
	for _, key := range keys {
		if limit > 0 && len(page.Keys) == limit {
			page.Cursor = page.Keys[len(page.Keys)-1].Key
			break
		}
		page.Keys = append(page.Keys, KeyInfo{Key: key, Meta: copyMeta(s.entries[key].meta)})
	}
	return page, nil
}

func (s *MemoryStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.live(key); held {
		return false, nil
	}
	s.entries[key] = &memEntry{expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }

// live returns the entry if present and not expired, dropping expired ones.
func (s *MemoryStore) live(key string) (*memEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e, true
}

func copyMeta(m *Metadata) *Metadata {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

var _ Store = (*MemoryStore)(nil)
