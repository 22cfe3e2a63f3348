package query

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one cached value
type Entry struct {
	Data        json.RawMessage `json:"data"`
	FetchedAt   time.Time       `json:"fetchedAt"`
	LastAccess  time.Time       `json:"lastAccess"`
	Invalidated bool            `json:"invalidated"`
}

// Store persists cache entries under their encoded key
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, e *Entry) error
	// Touch records a read. It must never clear the invalidated flag.
	Touch(ctx context.Context, key string, at time.Time) error
	// MarkInvalidated flags a stored entry stale in one atomic step; a
	// missing key is not an error
	MarkInvalidated(ctx context.Context, key string) error
	Delete(ctx context.Context, keys ...string) error
	// Keys lists keys starting with prefix; an empty prefix lists everything
	Keys(ctx context.Context, prefix string) ([]string, error)
	Clear(ctx context.Context) error
}

// MemoryStore keeps entries in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, e *Entry) error {
	s.mu.Lock()
	s.entries[key] = *e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.LastAccess = at
		s.entries[key] = e
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) MarkInvalidated(_ context.Context, key string) error {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.Invalidated = true
		s.entries[key] = e
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
