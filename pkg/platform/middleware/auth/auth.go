// Package auth verifies an optional bearer token ahead of the admission
// pipeline. A verified token becomes the request's pre-resolved identity.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"tollgate/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	UserID    string
	SessionID string
}

const bearerPrefix = "Bearer "

// OptionalBearer verifies an "Authorization: Bearer" token when present.
// Invalid tokens are logged and ignored: they grant nothing, and the caller
// still resolves through the remaining credential checks.
func OptionalBearer(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || validator == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			claims, err := validator.ValidateToken(token)
			if err != nil || claims.UserID == "" {
				logger.WarnContext(ctx, "ignoring invalid bearer token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx = requestcontext.WithVerifiedUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
