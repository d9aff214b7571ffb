//go:build integration

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tollgate/internal/auth/store/session"
	"tollgate/pkg/platform/sentinel"
	"tollgate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	now   time.Time
	store *session.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(s.pg.Exec(context.Background(), session.Schema))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Exec(context.Background(), "TRUNCATE sessions"))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.store = session.NewPostgres(s.pg.DB, session.WithPostgresClock(func() time.Time { return s.now }))
}

func (s *PostgresStoreSuite) TestLookup() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, "r:tok", "u1", false, time.Hour))
	s.Require().NoError(s.store.Put(ctx, "legacy", "u2", true, 0))

	user, err := s.store.UserForSessionToken(ctx, "r:tok")
	s.Require().NoError(err)
	s.Equal("u1", user.ID)

	user, err = s.store.UserForLegacySessionToken(ctx, "legacy")
	s.Require().NoError(err)
	s.Equal("u2", user.ID)

	_, err = s.store.UserForLegacySessionToken(ctx, "r:tok")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestExpiry() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, "r:tok", "u1", false, time.Minute))

	s.now = s.now.Add(time.Minute)
	_, err := s.store.UserForSessionToken(ctx, "r:tok")
	s.ErrorIs(err, sentinel.ErrExpired)
}
