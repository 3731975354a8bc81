package schema

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore provides thread-safe in-memory schema version storage.
// Nothing survives the process; used in tests and as the embedded state of
// FileStore.
type MemoryStore struct {
	// entries maps endpoint to its history in ascending version order
	entries map[string][]VersionEntry
	// mutex protects concurrent access to entries
	mutex sync.RWMutex
}

// NewMemoryStore creates a new thread-safe in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]VersionEntry),
	}
}

// Latest returns the most recent entry for endpoint.
func (s *MemoryStore) Latest(_ context.Context, endpoint string) (VersionEntry, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	history := s.entries[endpoint]
	if len(history) == 0 {
		return VersionEntry{}, false, nil
	}

	return copyEntry(history[len(history)-1]), true, nil
}

// Get returns the entry for (endpoint, version).
func (s *MemoryStore) Get(_ context.Context, endpoint string, version Version) (VersionEntry, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, entry := range s.entries[endpoint] {
		if entry.Version == version {
			return copyEntry(entry), true, nil
		}
	}

	return VersionEntry{}, false, nil
}

// Append adds a new entry, enforcing the strictly increasing version sequence.
func (s *MemoryStore) Append(_ context.Context, entry VersionEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	history := s.entries[entry.Endpoint]
	if len(history) > 0 {
		latest := history[len(history)-1]
		if entry.Version.Compare(latest.Version) <= 0 {
			return fmt.Errorf("%w: %s %s does not extend %s",
				ErrVersionConflict, entry.Endpoint, entry.Version, latest.Version)
		}
	}

	s.entries[entry.Endpoint] = append(history, copyEntry(entry))

	return nil
}

// Versions returns the endpoint's full history in ascending version order.
func (s *MemoryStore) Versions(_ context.Context, endpoint string) ([]VersionEntry, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	history := s.entries[endpoint]
	out := make([]VersionEntry, 0, len(history))

	for _, entry := range history {
		out = append(out, copyEntry(entry))
	}

	return out, nil
}

// Endpoints returns all registered endpoints, sorted.
func (s *MemoryStore) Endpoints(_ context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	endpoints := make([]string, 0, len(s.entries))

	for endpoint, history := range s.entries {
		if len(history) > 0 {
			endpoints = append(endpoints, endpoint)
		}
	}

	sort.Strings(endpoints)

	return endpoints, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// snapshot returns a deep copy of all entries, endpoint by endpoint.
// Used by FileStore to persist state without holding the lock during I/O.
func (s *MemoryStore) snapshot() map[string][]VersionEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make(map[string][]VersionEntry, len(s.entries))

	for endpoint, history := range s.entries {
		entries := make([]VersionEntry, 0, len(history))
		for _, entry := range history {
			entries = append(entries, copyEntry(entry))
		}

		out[endpoint] = entries
	}

	return out
}

// copyEntry returns a copy with its own fields slice, so callers cannot
// mutate stored history.
func copyEntry(entry VersionEntry) VersionEntry {
	entryCopy := entry
	entryCopy.Fields = append([]string(nil), entry.Fields...)

	return entryCopy
}
