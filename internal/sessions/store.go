// Package sessions holds live session state for low-latency turns: an
// in-memory, TTL-bounded map keyed by session id, rehydrated from the
// durable store on miss. Turns for one session are serialized by a keyed
// lock; sessions are independent.
package sessions

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jetlinks-ai/aistaff/internal/providers"
)

var ErrNotFound = errors.New("session not found")

// Session is the live state of one conversation.
type Session struct {
	ID          string              `json:"session_id"`
	TeamID      string              `json:"team_id"`
	ProjectID   string              `json:"project_id,omitempty"`
	Role        string              `json:"role,omitempty"`
	Provider    string              `json:"provider,omitempty"`
	Model       string              `json:"model,omitempty"`
	Messages    []providers.Message `json:"messages"`
	LastSummary string              `json:"last_summary,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Snapshot copies the message slice so a failed turn can roll back.
func (s *Session) Snapshot() []providers.Message {
	out := make([]providers.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Rehydrator loads durable history on a store miss, implemented by
// internal/store.
type Rehydrator interface {
	// SessionExists reports whether durable rows exist for (team, session).
	SessionExists(ctx context.Context, teamID, sessionID string) (bool, error)
	// LastMessages returns up to n most recent durable messages in ordinal order.
	LastMessages(ctx context.Context, teamID, sessionID string, n int) ([]providers.Message, error)
}

// Config bounds the in-memory store.
type Config struct {
	TTL                time.Duration
	MaxSessions        int
	MaxSessionMessages int
}

// Store is the in-memory session map plus the per-session turn locks.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    *KeyedMutex
	cfg      Config
	durable  Rehydrator

	stop chan struct{}
	once sync.Once
}

func NewStore(cfg Config, durable Rehydrator) *Store {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 500
	}
	if cfg.MaxSessionMessages <= 0 {
		cfg.MaxSessionMessages = 120
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	s := &Store{
		sessions: make(map[string]*Session),
		locks:    NewKeyedMutex(),
		cfg:      cfg,
		durable:  durable,
		stop:     make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Close stops the TTL sweeper.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

// Lock acquires the per-session turn lock. The caller holds it from the
// start of a turn until after persistence commits.
func (s *Store) Lock(sessionID string) func() {
	return s.locks.Lock(sessionID)
}

// GetOrCreate returns the live session for (team, session id), rehydrating
// from the durable store when absent. A live session whose team mismatches
// the caller is treated as not-found. When neither memory nor durable rows
// know the id, a fresh session is created.
func (s *Store) GetOrCreate(ctx context.Context, teamID, sessionID string) (*Session, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[sessionID]; ok {
		if sess.TeamID != teamID {
			s.mu.Unlock()
			return nil, ErrNotFound
		}
		sess.UpdatedAt = time.Now().UTC()
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	// Miss: rehydrate outside the map lock — durable reads can be slow.
	if s.durable != nil {
		exists, err := s.durable.SessionExists(ctx, teamID, sessionID)
		if err != nil {
			return nil, err
		}
		if exists {
			msgs, err := s.durable.LastMessages(ctx, teamID, sessionID, s.cfg.MaxSessionMessages)
			if err != nil {
				return nil, err
			}
			return s.admit(&Session{
				ID:        sessionID,
				TeamID:    teamID,
				Messages:  msgs,
				CreatedAt: time.Now().UTC(),
				UpdatedAt: time.Now().UTC(),
			}), nil
		}
	}

	now := time.Now().UTC()
	return s.admit(&Session{
		ID:        sessionID,
		TeamID:    teamID,
		CreatedAt: now,
		UpdatedAt: now,
	}), nil
}

// Peek returns the live session without touching updated_at, or nil.
func (s *Store) Peek(teamID, sessionID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.TeamID != teamID {
		return nil
	}
	return sess
}

// Append adds messages to the live session and trims the in-memory window.
func (s *Store) Append(sessionID string, msgs ...providers.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	sess.Messages = append(sess.Messages, msgs...)
	if over := len(sess.Messages) - s.cfg.MaxSessionMessages; over > 0 {
		sess.Messages = append([]providers.Message(nil), sess.Messages[over:]...)
	}
	sess.UpdatedAt = time.Now().UTC()
}

// Restore rolls a session back to a pre-turn snapshot after a failed commit.
func (s *Store) Restore(sessionID string, snapshot []providers.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.Messages = snapshot
	}
}

// Evict drops a session from memory (durable rows are untouched).
func (s *Store) Evict(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// admit inserts a session, evicting LRU entries over the cap.
func (s *Store) admit(sess *Session) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sess.ID]; ok {
		// Lost a creation race; keep the first one.
		return existing
	}
	s.sessions[sess.ID] = sess
	s.evictOverCapLocked()
	return sess
}

func (s *Store) evictOverCapLocked() {
	if len(s.sessions) <= s.cfg.MaxSessions {
		return
	}
	type entry struct {
		id string
		at time.Time
	}
	all := make([]entry, 0, len(s.sessions))
	for id, sess := range s.sessions {
		all = append(all, entry{id, sess.UpdatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for _, e := range all[:len(s.sessions)-s.cfg.MaxSessions] {
		delete(s.sessions, e.id)
		slog.Debug("session evicted (lru)", "session", e.id)
	}
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.cfg.TTL)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.TTL)
			s.mu.Lock()
			for id, sess := range s.sessions {
				if sess.UpdatedAt.Before(cutoff) {
					delete(s.sessions, id)
					slog.Debug("session evicted (ttl)", "session", id)
				}
			}
			s.mu.Unlock()
			s.locks.Cleanup()
		}
	}
}
