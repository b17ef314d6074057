package match

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps match ids to live matches. At most one Match exists per id.
type Registry struct {
	mu      sync.RWMutex
	matches map[uuid.UUID]*Match
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{matches: make(map[uuid.UUID]*Match)}
}

// GetOrCreate returns the match for id, building it with create when absent.
// Concurrent callers for the same id all receive the first instance stored;
// created is true only for the caller whose instance won.
func (r *Registry) GetOrCreate(id uuid.UUID, create func() *Match) (m *Match, created bool) {
	r.mu.RLock()
	m, ok := r.matches[id]
	r.mu.RUnlock()
	if ok {
		return m, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.matches[id]; ok {
		return m, false
	}
	m = create()
	r.matches[id] = m
	activeMatches.Inc()
	return m, true
}

// Get returns the match for id or ErrMatchNotFound.
func (r *Registry) Get(id uuid.UUID) (*Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// Remove drops the match and stops its timers. Missing ids are ignored.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	m, ok := r.matches[id]
	if ok {
		delete(r.matches, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	activeMatches.Dec()
	m.dispose()
	return true
}

// List returns the live matches in no particular order.
func (r *Registry) List() []*Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m)
	}
	return out
}

// Len reports how many matches are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}
