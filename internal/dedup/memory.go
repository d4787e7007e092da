package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps dedup state in process. Used for dry runs and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	fingerprints map[string]struct{}
	windows      map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fingerprints: make(map[string]struct{}),
		windows:      make(map[string]time.Time),
	}
}

func (m *MemoryStore) HasFingerprint(_ context.Context, fp string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.fingerprints[fp]
	return ok, nil
}

func (m *MemoryStore) LastSeen(_ context.Context, companyKey string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.windows[companyKey]
	return t, ok, nil
}

func (m *MemoryStore) Record(_ context.Context, fp, companyKey string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fingerprints[fp] = struct{}{}
	if companyKey != "" {
		m.windows[companyKey] = at
	}
	return nil
}

func (m *MemoryStore) PruneWindows(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, t := range m.windows {
		if t.Before(before) {
			delete(m.windows, k)
			n++
		}
	}
	return n, nil
}
