// Package admission chains the request admission stages as HTTP middleware:
// credential extraction, tenant checks, auth resolution, rate limiting,
// session completion, idempotency and master-key enforcement.
package admission

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	admmetrics "tollgate/internal/admission/metrics"
	"tollgate/internal/auth"
	"tollgate/internal/credentials"
	"tollgate/internal/idempotency"
	"tollgate/internal/ratelimit"
	tenantmodels "tollgate/internal/tenant/models"
	dErrors "tollgate/pkg/domain-errors"
	"tollgate/pkg/platform/httputil"
	"tollgate/pkg/platform/middleware/metadata"
	"tollgate/pkg/requestcontext"
)

const defaultBodyLimit = 20 << 20

// TenantLookup reads tenant configuration by app id.
type TenantLookup interface {
	Lookup(appID string) (*tenantmodels.Tenant, bool)
}

type AuthResolver interface {
	Resolve(ctx context.Context, in auth.Input) (*auth.Resolution, error)
}

type RateLimiter interface {
	Admit(ctx context.Context, req ratelimit.Request) error
}

type IdempotencyGuard interface {
	Claim(ctx context.Context, in idempotency.ClaimInput) error
}

type Pipeline struct {
	tenants   TenantLookup
	extractor *credentials.Extractor
	resolver  AuthResolver
	limiter   RateLimiter
	guard     IdempotencyGuard
	clientIPs *metadata.Resolver

	mountPath string
	bodyLimit int64

	logger  *slog.Logger
	metrics *admmetrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Pipeline)

// WithMountPath sets the prefix stripped from request paths before rules
// and idempotency patterns are matched.
func WithMountPath(path string) Option {
	return func(p *Pipeline) { p.mountPath = strings.TrimSuffix(path, "/") }
}

func WithBodyLimit(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.bodyLimit = n
		}
	}
}

func WithRateLimiter(l RateLimiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

func WithIdempotencyGuard(g IdempotencyGuard) Option {
	return func(p *Pipeline) { p.guard = g }
}

// WithClientIPResolver sets how the caller address is derived when no
// earlier middleware has recorded it. The default trusts only the peer.
func WithClientIPResolver(res *metadata.Resolver) Option {
	return func(p *Pipeline) { p.clientIPs = res }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithMetrics(m *admmetrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

func New(tenants TenantLookup, resolver AuthResolver, opts ...Option) *Pipeline {
	p := &Pipeline{
		tenants:   tenants,
		extractor: credentials.NewExtractor(tenants),
		resolver:  resolver,
		bodyLimit: defaultBodyLimit,
		logger:    slog.Default(),
		tracer:    otel.Tracer("tollgate/internal/admission"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MountPath returns the configured mount prefix without a trailing slash.
func (p *Pipeline) MountPath() string { return p.mountPath }

// Middleware returns the stages every mounted route runs, outermost first.
// Route-level stages (EnsureIdempotency, EnforceMasterKey) are applied per
// route by the caller.
func (p *Pipeline) Middleware() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		p.Recoverer,
		p.AllowCrossDomain,
		p.AllowMethodOverride,
		p.HandleHeaders,
		p.HandleSession,
	}
}

// relativePath strips the mount prefix. The result always starts with "/".
func (p *Pipeline) relativePath(r *http.Request) string {
	path := r.URL.Path
	if p.mountPath != "" {
		if rest, ok := strings.CutPrefix(path, p.mountPath); ok && (rest == "" || rest[0] == '/') {
			path = rest
		}
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return path
}

func (p *Pipeline) clientIP(r *http.Request) string {
	if ip := requestcontext.ClientIP(r.Context()); ip != "" {
		return ip
	}
	return p.clientIPs.ClientIP(r)
}

// readBody returns the request payload, parsing it at most once per request.
func (p *Pipeline) readBody(r *http.Request) (*credentials.Body, *http.Request, error) {
	if b, ok := bodyFromContext(r.Context()); ok {
		return b, r, nil
	}
	b, err := credentials.ReadBody(r, p.bodyLimit)
	if err != nil {
		return nil, r, err
	}
	return b, r.WithContext(withBody(r.Context(), b)), nil
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.metrics.ObserveStage(stage, time.Since(start).Seconds())
}

// fail logs, counts and writes err. Details of 5xx errors stay in the log.
func (p *Pipeline) fail(w http.ResponseWriter, r *http.Request, stage string, err error) {
	ctx := r.Context()
	t := httputil.Translate(err)
	p.metrics.IncRejection(stage, string(dErrors.CodeOf(err)))

	attrs := []any{
		"stage", stage,
		"status", t.Status,
		"error", err,
		"path", r.URL.Path,
		"request_id", requestcontext.RequestID(ctx),
	}
	if t.Status >= http.StatusInternalServerError {
		p.logger.ErrorContext(ctx, "admission failed", attrs...)
	} else {
		p.logger.InfoContext(ctx, "request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}
