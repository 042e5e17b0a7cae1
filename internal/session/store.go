// Package session provides the in-memory per-user session store and the
// idle-timeout sweeper. Sessions never touch disk: draft data exists only in
// process memory and is wiped before any record is released.
package session

import (
	"sync"
	"time"

	"natalbot/internal/domain"
)

// Store holds one session per user identity. Handlers for the same identity
// run sequentially: all access happens under that session's lock, which also
// makes the sweeper's expiry check atomic with respect to in-flight
// transitions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	timeout  time.Duration
	now      func() time.Time
}

type entry struct {
	mu   sync.Mutex
	s    *domain.Session
	gone bool // destroyed; the map may briefly still reference it
}

// New creates a session store with the given idle timeout.
func New(timeout time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Timeout returns the configured idle timeout.
func (st *Store) Timeout() time.Duration {
	return st.timeout
}

// WithSession runs fn with the identity's session under its lock, creating a
// fresh Idle session if none exists or the existing one has expired. If fn
// returns destroy=true the session is wiped and removed before WithSession
// returns.
func (st *Store) WithSession(identity string, fn func(s *domain.Session) (destroy bool, err error)) error {
	for {
		e := st.acquire(identity)
		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}

		now := st.now()
		if e.s.Expired(now, st.timeout) {
			e.s.Wipe()
			e.gone = true
			e.mu.Unlock()
			st.remove(identity, e)
			continue
		}

		destroy, err := fn(e.s)
		if destroy {
			e.s.Wipe()
			e.gone = true
		}
		e.mu.Unlock()
		if destroy {
			st.remove(identity, e)
		}
		return err
	}
}

// WithExisting is like WithSession but never creates a session. It returns
// false when no live session exists for the identity. Used to apply results
// of asynchronous work that must not resurrect a destroyed session.
func (st *Store) WithExisting(identity string, fn func(s *domain.Session) (destroy bool, err error)) (bool, error) {
	st.mu.Lock()
	e, ok := st.sessions[identity]
	st.mu.Unlock()
	if !ok {
		return false, nil
	}

	e.mu.Lock()
	if e.gone || e.s.Expired(st.now(), st.timeout) {
		e.mu.Unlock()
		return false, nil
	}

	destroy, err := fn(e.s)
	if destroy {
		e.s.Wipe()
		e.gone = true
	}
	e.mu.Unlock()
	if destroy {
		st.remove(identity, e)
	}
	return true, err
}

// Destroy wipes and removes the identity's session. Returns true if a live
// session existed.
func (st *Store) Destroy(identity string) bool {
	found, _ := st.WithExisting(identity, func(*domain.Session) (bool, error) {
		return true, nil
	})
	return found
}

// SweepExpired destroys every session idle past the timeout at the given
// instant and returns the destroyed identities. Expiry is re-checked under
// each session's lock, so a session mid-transition is never destroyed. A
// session whose lock is held (an event handler is running, possibly inside
// an upstream call) is skipped rather than waited on; the next sweep will
// see it again.
func (st *Store) SweepExpired(now time.Time) []string {
	st.mu.Lock()
	candidates := make(map[string]*entry, len(st.sessions))
	for id, e := range st.sessions {
		candidates[id] = e
	}
	st.mu.Unlock()

	var destroyed []string
	for id, e := range candidates {
		if !e.mu.TryLock() {
			continue
		}
		expired := !e.gone && e.s.Expired(now, st.timeout)
		if expired {
			e.s.Wipe()
			e.gone = true
		}
		e.mu.Unlock()
		if expired {
			st.remove(id, e)
			destroyed = append(destroyed, id)
		}
	}
	return destroyed
}

// Snapshot returns a copy of the identity's session for inspection. The
// draft pointer fields are not shared.
func (st *Store) Snapshot(identity string) (domain.Session, bool) {
	var out domain.Session
	found, _ := st.WithExisting(identity, func(s *domain.Session) (bool, error) {
		out = *s
		out.Draft = s.Draft.Clone()
		out.Candidates = append([]domain.ResolvedLocation(nil), s.Candidates...)
		return false, nil
	})
	return out, found
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *Store) acquire(identity string) *entry {
	st.mu.Lock()
	defer st.mu.Unlock()
	if e, ok := st.sessions[identity]; ok {
		return e
	}
	now := st.now()
	e := &entry{s: &domain.Session{
		Identity:     identity,
		State:        domain.StateIdle,
		CreatedAt:    now,
		LastActivity: now,
	}}
	st.sessions[identity] = e
	return e
}

// remove deletes the map slot only if it still points at e, so a fresh
// session created for the same identity in the meantime survives.
func (st *Store) remove(identity string, e *entry) {
	st.mu.Lock()
	if cur, ok := st.sessions[identity]; ok && cur == e {
		delete(st.sessions, identity)
	}
	st.mu.Unlock()
}
