package ratelimit

import (
	"context"
	"time"

	authmodels "tollgate/internal/auth/models"
	"tollgate/internal/ratelimit/models"
)

// CounterStore counts hits per key in fixed windows.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (models.Count, error)
	Reset(ctx context.Context, key string) error
}

// SessionResolver completes a deferred session lookup. Implementations
// perform at most one lookup however often Resolve is called.
type SessionResolver interface {
	Resolve(ctx context.Context) (*authmodels.AuthContext, error)
}
