// Package registry holds the prepared tenant configurations and serves
// read-only lookups to the admission pipeline.
package registry

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"tollgate/internal/tenant/metrics"
	"tollgate/internal/tenant/models"
)

// Registry is a copy-on-write map of tenants. Lookups never block; writers
// serialize on mu and publish a fresh snapshot.
type Registry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[map[string]*models.Tenant]
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	empty := map[string]*models.Tenant{}
	r.snapshot.Store(&empty)
	return r
}

// Register prepares and publishes tenant, replacing any tenant with the same
// app id.
func (r *Registry) Register(ctx context.Context, tenant *models.Tenant) error {
	if err := tenant.Prepare(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := maps.Clone(*r.snapshot.Load())
	next[tenant.AppID] = tenant
	r.snapshot.Store(&next)

	if r.metrics != nil {
		r.metrics.SetRegistered(len(next))
	}
	r.logger.InfoContext(ctx, "tenant registered",
		"app_id", tenant.AppID,
		"state", tenant.State,
		"rate_limit_rules", len(tenant.RateLimits),
	)
	return nil
}

// Remove unpublishes a tenant.
func (r *Registry) Remove(ctx context.Context, appID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := maps.Clone(*r.snapshot.Load())
	delete(next, appID)
	r.snapshot.Store(&next)

	if r.metrics != nil {
		r.metrics.SetRegistered(len(next))
	}
	r.logger.InfoContext(ctx, "tenant removed", "app_id", appID)
}

// Lookup returns the tenant registered under appID.
func (r *Registry) Lookup(appID string) (*models.Tenant, bool) {
	t, ok := (*r.snapshot.Load())[appID]
	if !ok && r.metrics != nil {
		r.metrics.IncrementLookupMiss()
	}
	return t, ok
}

// AppIDs returns the registered app ids in sorted order.
func (r *Registry) AppIDs() []string {
	return slices.Sorted(maps.Keys(*r.snapshot.Load()))
}
