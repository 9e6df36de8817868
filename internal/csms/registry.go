package csms

import (
	"sort"
	"sync"

	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
)

// Registry maps connected station ids to their sessions. It is the only
// state shared across sessions besides the store.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// register installs a session. When the id is taken and replace is false it
// returns ErrDuplicateStation; with replace it returns the displaced
// session for the caller to close.
func (r *Registry) register(s *Session, replace bool) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, exists := r.sessions[s.stationID]
	if exists && !replace {
		return nil, v16.ErrDuplicateStation
	}
	r.sessions[s.stationID] = s
	if exists {
		return old, nil
	}
	return nil, nil
}

// unregister removes a session only when it is still the registered one,
// so a replacement session is never knocked out by its predecessor's
// cleanup.
func (r *Registry) unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[s.stationID]; ok && current == s {
		delete(r.sessions, s.stationID)
		return true
	}
	return false
}

// Get returns the session for a station id.
func (r *Registry) Get(stationID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[stationID]
	return s, ok
}

// IDs returns the connected station ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns the connected sessions ordered by station id.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].stationID < out[j].stationID })
	return out
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
