package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRecord struct {
	phase     string
	state     []byte
	updatedAt time.Time
}

// MemoryStore 是进程内实现，主要用于测试与一次性运行。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(rec.state))
	copy(out, rec.state)
	return out, nil
}

func (m *MemoryStore) Put(_ context.Context, sessionID, phase string, state []byte) error {
	buf := make([]byte, len(state))
	copy(buf, state)
	m.mu.Lock()
	m.records[sessionID] = memoryRecord{phase: phase, state: buf, updatedAt: time.Now().UTC()}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.records, sessionID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.records))
	for id, rec := range m.records {
		out = append(out, Entry{SessionID: id, Phase: rec.phase, UpdatedAt: rec.updatedAt})
	}
	m.mu.RUnlock()
	sortEntries(out)
	return out, nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].SessionID < entries[j].SessionID
		}
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
}
