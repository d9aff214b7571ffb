package auth

import (
	"context"

	"tollgate/internal/auth/models"
)

// SessionStore resolves session tokens to users. Implementations return
// sentinel.ErrNotFound for unknown, expired or revoked tokens.
type SessionStore interface {
	UserForSessionToken(ctx context.Context, token string) (*models.User, error)
	UserForLegacySessionToken(ctx context.Context, token string) (*models.User, error)
}
