package admission

import (
	"context"

	"tollgate/internal/auth"
	authmodels "tollgate/internal/auth/models"
	"tollgate/internal/credentials"
	tenantmodels "tollgate/internal/tenant/models"
)

// State is what the pipeline learned about a request. It is created by
// HandleHeaders; HandleSession fills Auth when resolution was deferred.
type State struct {
	Info   *credentials.RequestInfo
	Tenant *tenantmodels.Tenant
	// Path is relative to the mount path.
	Path     string
	ClientIP string

	Auth    *authmodels.AuthContext
	Pending *auth.Pending
}

type (
	stateKey struct{}
	bodyKey  struct{}
)

func withState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// FromContext returns the admission state, if HandleHeaders ran.
func FromContext(ctx context.Context) (*State, bool) {
	s, ok := ctx.Value(stateKey{}).(*State)
	return s, ok && s != nil
}

// AuthFromContext returns the resolved caller, or nil when the request has
// not been through HandleSession.
func AuthFromContext(ctx context.Context) *authmodels.AuthContext {
	if s, ok := FromContext(ctx); ok {
		return s.Auth
	}
	return nil
}

func withBody(ctx context.Context, b *credentials.Body) context.Context {
	return context.WithValue(ctx, bodyKey{}, b)
}

func bodyFromContext(ctx context.Context) (*credentials.Body, bool) {
	b, ok := ctx.Value(bodyKey{}).(*credentials.Body)
	return b, ok
}
