package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dgallion1/deckgest/internal/schema"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore is a thread-safe in-memory session registry with TTL
// eviction. Evicted sessions are closed, cancelling their work.
type SessionStore struct {
	deps     Deps
	defaults []schema.SchemaField
	ttl      time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	cron *cron.Cron
}

func NewSessionStore(deps Deps, defaults []schema.SchemaField, ttl time.Duration) *SessionStore {
	return &SessionStore{
		deps:     deps,
		defaults: slices.Clone(defaults),
		ttl:      ttl,
		log:      deps.Log,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session seeded with the default schema.
func (s *SessionStore) Create() *Session {
	sess := NewSession(s.deps, s.defaults)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.log.Info("session created", "session_id", sess.ID, "sessions", n)
	return sess
}

// Get returns a session and refreshes its TTL.
func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch()
	return sess, nil
}

func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.Close()
	return nil
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup closes and removes expired sessions.
func (s *SessionStore) Cleanup() {
	now := time.Now()
	var expired []*Session

	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.expired(now, s.ttl) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
	}
	if len(expired) > 0 {
		s.log.Info("expired sessions removed", "count", len(expired))
	}
}

// StartCleanup runs Cleanup on a cron schedule such as "@every 5m".
func (s *SessionStore) StartCleanup(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(strings.TrimSpace(schedule), s.Cleanup); err != nil {
		return fmt.Errorf("session cleanup schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the cleanup schedule and closes every session.
func (s *SessionStore) Stop(ctx context.Context) {
	if s.cron != nil {
		select {
		case <-s.cron.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	all := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		all = append(all, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range all {
		sess.Close()
	}
}

// Deps returns the collaborators shared by the store's sessions.
func (s *SessionStore) Deps() Deps {
	return s.deps
}
