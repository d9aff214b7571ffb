package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tollgate/internal/idempotency/models"
	"tollgate/pkg/platform/sentinel"
	"tollgate/pkg/platform/tx"
)

// Schema creates the table used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS idempotency_records (
	app_id     TEXT NOT NULL,
	request_id TEXT NOT NULL,
	expire_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (app_id, request_id)
);
CREATE INDEX IF NOT EXISTS idempotency_records_expire_at_idx ON idempotency_records (expire_at)`

const pqUniqueViolation = "23505"

// PostgresStore relies on the primary key for atomic claims. An expired row
// for the same id is removed in the claiming transaction.
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
		opt(s)
	}
	return s
}

func (s *PostgresStore) Kind() string { return models.KindPostgres }

// Create inserts the record. When ctx carries a transaction (see package tx)
// the claim joins it; otherwise it runs in its own.
func (s *PostgresStore) Create(ctx context.Context, rec models.Record) error {
	err := tx.Run(ctx, s.db, func(ctx context.Context, t *sql.Tx) error {
		return s.create(ctx, t, rec)
	})
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	return err
}

func (s *PostgresStore) create(ctx context.Context, t *sql.Tx, rec models.Record) error {
	_, err := t.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE app_id = $1 AND request_id = $2 AND expire_at <= $3`,
		rec.AppID, rec.RequestID, s.clock(),
	)
	if err != nil {
		return fmt.Errorf("delete expired idempotency record: %w", err)
	}
	_, err = t.ExecContext(ctx,
		`INSERT INTO idempotency_records (app_id, request_id, expire_at) VALUES ($1, $2, $3)`,
		rec.AppID, rec.RequestID, rec.ExpireAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// StartCleanup periodically removes expired records until ctx is cancelled.
func (s *PostgresStore) StartCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RemoveExpiredAt(ctx, s.clock()); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RemoveExpiredAt deletes records expired as of now and reports how many.
func (s *PostgresStore) RemoveExpiredAt(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE expire_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency records: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
