package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tollgate/internal/auth/models"
	"tollgate/pkg/platform/sentinel"
)

// Schema creates the sessions table read by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	legacy     BOOLEAN NOT NULL DEFAULT FALSE,
	expires_at TIMESTAMPTZ
)`

// PostgresStore reads sessions owned by the session issuer.
type PostgresStore struct {
	db    *sql.DB
	clock Clock
}

type PostgresOption func(*PostgresStore)

func WithPostgresClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Put upserts a session row. A zero ttl stores no expiry.
func (s *PostgresStore) Put(ctx context.Context, token, userID string, legacy bool, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: s.clock().Add(ttl), Valid: true}
	}
	query := `
		INSERT INTO sessions (token, user_id, legacy, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			legacy = EXCLUDED.legacy,
			expires_at = EXCLUDED.expires_at
	`
	if _, err := s.db.ExecContext(ctx, query, token, userID, legacy, expiresAt); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *PostgresStore) UserForSessionToken(ctx context.Context, token string) (*models.User, error) {
	return s.find(ctx, token, false)
}

func (s *PostgresStore) UserForLegacySessionToken(ctx context.Context, token string) (*models.User, error) {
	return s.find(ctx, token, true)
}

func (s *PostgresStore) find(ctx context.Context, token string, legacy bool) (*models.User, error) {
	var (
		userID    string
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = $1 AND legacy = $2`,
		token, legacy,
	).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	if expiresAt.Valid && !s.clock().Before(expiresAt.Time) {
		return nil, sentinel.ErrExpired
	}
	return &models.User{ID: userID, SessionToken: token}, nil
}
