package session

import (
	"sort"
	"sync"

	"github.com/farmkonnect/taskmigrate/internal/domain"
)

// MemoryStore is a concurrency-safe in-memory session store. It backs tests
// and embedded use; production runs use the durable SQLite-backed store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.MigrationSession
	byFarm   map[string][]string // insertion order per farm
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.MigrationSession),
		byFarm:   make(map[string][]string),
	}
}

// Put stores or replaces a session snapshot.
func (m *MemoryStore) Put(s *domain.MigrationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.SessionID]; !exists {
		m.byFarm[s.FarmID] = append(m.byFarm[s.FarmID], s.SessionID)
	}
	m.sessions[s.SessionID] = s.Clone()
	return nil
}

// Get returns a session by ID.
func (m *MemoryStore) Get(sessionID string) (*domain.MigrationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Latest returns the most recently started session for a farm.
func (m *MemoryStore) Latest(farmID string) (*domain.MigrationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byFarm[farmID]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}

	var latest *domain.MigrationSession
	for _, id := range ids {
		s := m.sessions[id]
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	return latest.Clone(), nil
}

// List returns all of a farm's sessions, oldest first.
func (m *MemoryStore) List(farmID string) ([]*domain.MigrationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byFarm[farmID]
	out := make([]*domain.MigrationSession, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.sessions[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}
