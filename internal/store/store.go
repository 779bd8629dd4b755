// internal/store/store.go
package store

import (
	"context"
	"sync"

	"copilot-metrics-service/internal/model"
)

// UsageStore persists self-reported Copilot usage counters keyed by user
// login. Exactly one record per identity; Put replaces the whole record
// (last write wins).
type UsageStore interface {
	// Get returns the stored record for login. found is false when no
	// record exists; the returned record is then zero-valued.
	Get(ctx context.Context, login string) (rec model.UsageRecord, found bool, err error)
	// Put stores rec for login, replacing any existing record.
	Put(ctx context.Context, login string, rec model.UsageRecord) error
}

// MemoryStore is a process-lifetime UsageStore backed by a map. Writes are
// whole-record replacements; the mutex only guards the map itself.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.UsageRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.UsageRecord)}
}

func (s *MemoryStore) Get(_ context.Context, login string) (model.UsageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[login]
	return rec, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, login string, rec model.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[login] = rec
	return nil
}
