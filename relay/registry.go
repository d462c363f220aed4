//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=../mocks/mock_registry.go -package=mocks
package relay

import "sync"

type sessionSet map[*Session]struct{}

// IRegistry is the session directory consumed by the service layer.
type IRegistry interface {
	Register(session *Session) bool
	Unregister(session *Session) bool
	DeliverTo(userID, event string, data any)
	Broadcast(event string, data any)
}

// Registry maps each identity to its set of live sessions. Every mutation
// runs under one mutex so the "first session" and "set became empty" checks
// are atomic with the mutation itself; two near-simultaneous connects or
// disconnects for the same identity cannot double-fire or drop a presence
// transition.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]sessionSet
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]sessionSet)}
}

// Register adds the session to its identity's set and reports whether it is
// the identity's first live session (the online presence edge).
func (r *Registry) Register(session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[session.UserID]
	if !ok {
		set = make(sessionSet)
		r.sessions[session.UserID] = set
	}
	set[session] = struct{}{}
	return len(set) == 1
}

// Unregister removes the session and reports whether the identity has no
// live session left (the offline presence edge). Empty sets are removed so
// the map does not leak entries over time.
func (r *Registry) Unregister(session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[session.UserID]
	if !ok {
		return false
	}
	if _, tracked := set[session]; !tracked {
		return false
	}
	delete(set, session)
	if len(set) == 0 {
		delete(r.sessions, session.UserID)
		return true
	}
	return false
}

// DeliverTo pushes the event to every live session of the identity.
// An identity with no live session is a no-op, not an error: there is no
// offline queue.
func (r *Registry) DeliverTo(userID, event string, data any) {
	for _, session := range r.snapshot(userID) {
		session.Deliver(event, data)
	}
}

// Broadcast pushes the event to every live session of every identity.
// Used for presence transitions, which any connected party may display.
func (r *Registry) Broadcast(event string, data any) {
	r.mu.Lock()
	var all []*Session
	for _, set := range r.sessions {
		for session := range set {
			all = append(all, session)
		}
	}
	r.mu.Unlock()

	for _, session := range all {
		session.Deliver(event, data)
	}
}

// LiveSessions returns the number of live sessions for an identity. Only
// tests need the count; production callers react to the Register and
// Unregister edges instead.
func (r *Registry) LiveSessions(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[userID])
}

// snapshot copies the identity's session set under the lock; delivery then
// happens outside it so a slow session never stalls registry mutations.
func (r *Registry) snapshot(userID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[userID]
	if !ok {
		return nil
	}
	sessions := make([]*Session, 0, len(set))
	for session := range set {
		sessions = append(sessions, session)
	}
	return sessions
}
