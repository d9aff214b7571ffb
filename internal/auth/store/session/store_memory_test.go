package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tollgate/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	now   time.Time
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.store = New(WithClock(func() time.Time { return s.now }))
}

func (s *InMemoryStoreSuite) TestLookup() {
	ctx := context.Background()

	s.Run("returns the owning user", func() {
		s.store.Put("r:one", "u1", time.Hour)
		user, err := s.store.UserForSessionToken(ctx, "r:one")
		s.Require().NoError(err)
		s.Equal("u1", user.ID)
		s.Equal("r:one", user.SessionToken)
	})

	s.Run("unknown token is not found", func() {
		_, err := s.store.UserForSessionToken(ctx, "r:missing")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("legacy and revocable tables are separate", func() {
		s.store.PutLegacy("old", "u2", 0)
		_, err := s.store.UserForSessionToken(ctx, "old")
		s.ErrorIs(err, sentinel.ErrNotFound)

		user, err := s.store.UserForLegacySessionToken(ctx, "old")
		s.Require().NoError(err)
		s.Equal("u2", user.ID)
	})

	s.Run("revoked token is not found", func() {
		s.store.Put("r:two", "u3", 0)
		s.store.Revoke("r:two")
		_, err := s.store.UserForSessionToken(ctx, "r:two")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestExpiry() {
	s.store.Put("r:short", "u1", time.Minute)

	s.now = s.now.Add(59 * time.Second)
	_, err := s.store.UserForSessionToken(context.Background(), "r:short")
	s.Require().NoError(err)

	s.now = s.now.Add(time.Second)
	_, err = s.store.UserForSessionToken(context.Background(), "r:short")
	s.ErrorIs(err, sentinel.ErrExpired)
}
