package session

import "sync"

// Store owns the single current session. Replace-only semantics: readers
// get a copy, writers swap the whole value. The session validator and the
// UI layer read it; only a completed flow or an explicit offline selection
// writes it.
type Store struct {
	mu        sync.RWMutex
	current   Session
	onReplace []func(Session)
}

// NewStore creates a store, optionally seeded with an initial session.
func NewStore(initial Session) *Store {
	return &Store{current: initial}
}

// Current returns the current session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace swaps the current session and fires registered hooks with the
// new value. Hooks run synchronously on the caller's goroutine.
func (s *Store) Replace(next Session) {
	s.mu.Lock()
	s.current = next
	hooks := make([]func(Session), len(s.onReplace))
	copy(hooks, s.onReplace)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(next)
	}
}

// OnReplace registers a hook invoked after every session swap. The
// validator uses this to drop its cached status.
func (s *Store) OnReplace(hook func(Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReplace = append(s.onReplace, hook)
}
