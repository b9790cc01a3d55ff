package server

import "sync"

// Registry is the concurrent map of live sessions keyed by
// ClientSessionKey (spec.md §4.5, §5: "a concurrent map keyed by client
// ID; inserts happen only post-handshake, removals only via
// remove_client"). Grounded on the teacher's ConcurrentRepository
// RWMutex-wrapping shape, adapted from IP-keyed peers to session-keyed
// ones.
type Registry struct {
	mu       sync.RWMutex
	sessions map[ClientSessionKey]*Session
}

func newRegistry() *Registry {
	return &Registry{sessions: make(map[ClientSessionKey]*Session)}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Key] = s
}

// remove deletes key from the registry and reports whether it was present
// (the single mutation path for disconnects, spec.md §4.5: "remove-client
// is the single mutation path for disconnects").
func (r *Registry) remove(key ClientSessionKey) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	return s, ok
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// contains reports whether key is already live, used when generating a
// fresh ClientSessionKey (spec.md §4.5: "rejecting collisions against the
// live set").
func (r *Registry) contains(key ClientSessionKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[key]
	return ok
}

// Snapshot returns the current sessions as a slice, safe to iterate
// without holding the registry lock (spec.md §4.5: "Broadcast is fan-out
// over the current registry snapshot").
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Get looks up a session by key.
func (r *Registry) Get(key ClientSessionKey) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}
