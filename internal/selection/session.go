package selection

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bundle-proxy/internal/model"
)

// Session is the proxy-side analogue of one page view: a tracker plus the
// re-entrancy flag guarding the session's own corrective cart-add call.
type Session struct {
	ID      string
	Tracker *Tracker

	adding   atomic.Bool
	lastSeen atomic.Int64 // unix nanos
}

// BeginAdd marks the session's corrective cart-add as in flight. Returns
// false if one is already in flight; the caller must then pass the original
// request through instead of recursing.
func (s *Session) BeginAdd() bool {
	return s.adding.CompareAndSwap(false, true)
}

// EndAdd clears the in-flight marker. Always call from a deferred block so a
// failed add can never leave the session permanently unable to add to cart.
func (s *Session) EndAdd() {
	s.adding.Store(false)
}

// Adding reports whether the session's own cart-add is currently in flight.
func (s *Session) Adding() bool {
	return s.adding.Load()
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// Store holds widget sessions keyed by session token. Sessions are
// page-lifetime state; the TTL only reclaims memory for pages that navigated
// away without saying goodbye.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *slog.Logger
}

// NewStore creates a session store with the given idle TTL.
// A non-positive ttl defaults to 30 minutes.
func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger,
	}
}

// Get returns the session with the given id, or nil. Touches the session.
func (s *Store) Get(id string) *Session {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.touch()
	return sess
}

// GetOrCreate returns the existing session or creates one for the bundle.
// Free-gift auto-selection happens at creation via NewTracker.
func (s *Store) GetOrCreate(id string, bundle *model.Bundle, gifts map[string]VariantSource) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.touch()
		return sess
	}

	sess := &Session{
		ID:      id,
		Tracker: NewTracker(bundle, gifts, s.logger),
	}
	sess.touch()
	s.sessions[id] = sess
	s.evictExpiredLocked()
	return sess
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evictExpiredLocked drops sessions idle past the TTL. Caller holds s.mu.
func (s *Store) evictExpiredLocked() {
	cutoff := time.Now().Add(-s.ttl).UnixNano()
	for id, sess := range s.sessions {
		if sess.lastSeen.Load() < cutoff {
			delete(s.sessions, id)
		}
	}
}
