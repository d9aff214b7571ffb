package main

import (
	"context"
	"database/sql"
	"fmt"

	"tollgate/internal/auth"
	"tollgate/internal/auth/store/session"
	"tollgate/internal/idempotency"
	idstore "tollgate/internal/idempotency/store"
	"tollgate/internal/platform/config"
	"tollgate/internal/platform/redis"
	rlmodels "tollgate/internal/ratelimit/models"
	"tollgate/internal/tenant/registry"
)

func newSessionStore(kind string, rc *redis.Client, db *sql.DB) (auth.SessionStore, error) {
	switch kind {
	case config.StoreMemory:
		return session.New(), nil
	case config.StoreRedis:
		if rc == nil {
			return nil, fmt.Errorf("session store %q requires redis", kind)
		}
		return session.NewRedis(rc.Client), nil
	case config.StorePostgres:
		if db == nil {
			return nil, fmt.Errorf("session store %q requires postgres", kind)
		}
		return session.NewPostgres(db), nil
	}
	return nil, fmt.Errorf("unknown session store %q", kind)
}

func newIdempotencyStore(kind string, rc *redis.Client, db *sql.DB) (idempotency.Store, error) {
	switch kind {
	case config.StoreMemory:
		return idstore.NewMemory(), nil
	case config.StoreRedis:
		if rc == nil {
			return nil, fmt.Errorf("idempotency store %q requires redis", kind)
		}
		return idstore.NewRedis(rc.Client), nil
	case config.StorePostgres:
		if db == nil {
			return nil, fmt.Errorf("idempotency store %q requires postgres", kind)
		}
		return idstore.NewPostgres(db), nil
	}
	return nil, fmt.Errorf("unknown idempotency store %q", kind)
}

// ruleLoader installs a tenant's rate limit rules.
type ruleLoader interface {
	LoadTenant(appID string, opts []rlmodels.Options) error
}

// loadTenants registers every tenant in path and installs its rate limit
// rules. Any invalid tenant aborts startup.
func loadTenants(ctx context.Context, path string, tenants *registry.Registry, limits ruleLoader) error {
	list, err := registry.LoadFile(path)
	if err != nil {
		return err
	}
	for _, t := range list {
		if err := tenants.Register(ctx, t); err != nil {
			return fmt.Errorf("register tenant %s: %w", t.AppID, err)
		}
		if err := limits.LoadTenant(t.AppID, t.RateLimits); err != nil {
			return fmt.Errorf("install rate limits for %s: %w", t.AppID, err)
		}
	}
	return nil
}
