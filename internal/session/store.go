// Package session holds the signed-in identity of each browser.
//
// A Store keeps one Session per session id. Every change replaces the whole
// session, writes a snapshot through the Persister before returning, and then
// notifies subscribers. The store performs no validation: the backend is the
// only authority on who a user is and what their role allows.
package session

import (
	"context"
	"sync"

	"cacviun/internal/models"

	"github.com/rs/zerolog/log"
)

// Persister is the durable slot behind a Store.
type Persister interface {
	Load(ctx context.Context, sid string) (models.Session, bool, error)
	Save(ctx context.Context, sid string, s models.Session) error
	Delete(ctx context.Context, sid string) error
}

// Listener is called after a session changes.
type Listener func(sid string, s models.Session)

// Store is an in-memory session table backed by a Persister.
type Store struct {
	persister Persister

	mu        sync.RWMutex
	sessions  map[string]models.Session
	listeners []Listener
}

// NewStore creates a store. A nil persister keeps sessions in memory only.
func NewStore(p Persister) *Store {
	return &Store{
		persister: p,
		sessions:  make(map[string]models.Session),
	}
}

// Get returns the session for sid, rehydrating it from the persister on the
// first access. A missing or unreadable slot yields the empty session.
func (s *Store) Get(ctx context.Context, sid string) models.Session {
	if sid == "" {
		return models.Session{}
	}

	s.mu.RLock()
	sess, ok := s.sessions[sid]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	if s.persister == nil {
		return models.Session{}
	}

	loaded, found, err := s.persister.Load(ctx, sid)
	if err != nil {
		log.Warn().Err(err).Str("sid", sid).Msg("Failed to rehydrate session")
		return models.Session{}
	}
	if !found {
		return models.Session{}
	}

	s.mu.Lock()
	// A concurrent Set wins over the rehydrated snapshot.
	if current, ok := s.sessions[sid]; ok {
		loaded = current
	} else {
		s.sessions[sid] = loaded
	}
	s.mu.Unlock()

	return loaded
}

// Set replaces the whole session for sid, persists it synchronously and
// notifies subscribers. On persistence failure the in-memory value is still
// replaced and the error is returned.
func (s *Store) Set(ctx context.Context, sid string, sess models.Session) error {
	s.mu.Lock()
	s.sessions[sid] = sess
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	var err error
	if s.persister != nil {
		if sess.IsZero() {
			err = s.persister.Delete(ctx, sid)
		} else {
			err = s.persister.Save(ctx, sid, sess)
		}
	}

	for _, l := range listeners {
		l(sid, sess)
	}
	return err
}

// Clear is Set with the empty session.
func (s *Store) Clear(ctx context.Context, sid string) error {
	return s.Set(ctx, sid, models.Session{})
}

// Subscribe registers l to be called after every Set.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Forget drops the in-memory copy for sid without touching the persister.
func (s *Store) Forget(sid string) {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()
}

// Len returns the number of sessions held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
