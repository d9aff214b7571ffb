// Package session provides SessionStore adapters that map session tokens to
// users.
package session

import (
	"context"
	"sync"
	"time"

	"tollgate/internal/auth/models"
	"tollgate/pkg/platform/sentinel"
)

// Clock returns the current time.
type Clock func() time.Time

type entry struct {
	userID    string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// InMemoryStore keeps revocable and legacy sessions in process memory.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]entry
	legacy map[string]entry
	clock  Clock
}

type InMemoryOption func(*InMemoryStore)

func WithClock(clock Clock) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		tokens: make(map[string]entry),
		legacy: make(map[string]entry),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put registers a revocable session. A zero ttl never expires.
func (s *InMemoryStore) Put(token, userID string, ttl time.Duration) {
	s.put(s.tokens, token, userID, ttl)
}

// PutLegacy registers a pre-revocable session token.
func (s *InMemoryStore) PutLegacy(token, userID string, ttl time.Duration) {
	s.put(s.legacy, token, userID, ttl)
}

func (s *InMemoryStore) put(m map[string]entry, token, userID string, ttl time.Duration) {
	e := entry{userID: userID}
	if ttl > 0 {
		e.expiresAt = s.clock().Add(ttl)
	}
	s.mu.Lock()
	m[token] = e
	s.mu.Unlock()
}

// Revoke removes the token from both tables.
func (s *InMemoryStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	delete(s.legacy, token)
	s.mu.Unlock()
}

func (s *InMemoryStore) UserForSessionToken(_ context.Context, token string) (*models.User, error) {
	return s.find(s.tokens, token)
}

func (s *InMemoryStore) UserForLegacySessionToken(_ context.Context, token string) (*models.User, error) {
	return s.find(s.legacy, token)
}

func (s *InMemoryStore) find(m map[string]entry, token string) (*models.User, error) {
	s.mu.RLock()
	e, ok := m[token]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if e.expired(s.clock()) {
		return nil, sentinel.ErrExpired
	}
	return &models.User{ID: e.userID, SessionToken: token}, nil
}
