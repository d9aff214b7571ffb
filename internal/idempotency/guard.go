// Package idempotency rejects replays of write requests that carry a
// previously seen request id.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	idmetrics "tollgate/internal/idempotency/metrics"
	"tollgate/internal/idempotency/models"
	tenantmodels "tollgate/internal/tenant/models"
	dErrors "tollgate/pkg/domain-errors"
	audit "tollgate/pkg/platform/audit"
	"tollgate/pkg/platform/sentinel"
	"tollgate/pkg/requestcontext"
)

//go:generate mockgen -source=guard.go -destination=mocks/mocks.go -package=mocks Store

// Store creates records atomically. Create returns sentinel.ErrConflict when
// an unexpired record with the same (AppID, RequestID) exists.
type Store interface {
	Create(ctx context.Context, rec models.Record) error
	Kind() string
}

var supportedKinds = map[string]bool{
	models.KindMemory:   true,
	models.KindPostgres: true,
	models.KindRedis:    true,
}

const defaultPatternCacheSize = 512

// ClaimInput describes one guarded request.
type ClaimInput struct {
	AppID     string
	RequestID string
	// Path is relative to the mount path.
	Path    string
	Options *tenantmodels.IdempotencyOptions
}

type Guard struct {
	store    Store
	patterns *lru.Cache[string, *regexp.Regexp]
	logger   *slog.Logger
	metrics  *idmetrics.Metrics
	tracer   trace.Tracer
	auditor  audit.SecurityAuditor
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

func WithMetrics(m *idmetrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Guard) { g.tracer = t }
}

func WithAuditor(a audit.SecurityAuditor) Option {
	return func(g *Guard) { g.auditor = a }
}

// New builds a guard over store. A nil store makes every claim a no-op.
func New(store Store, opts ...Option) *Guard {
	cache, _ := lru.New[string, *regexp.Regexp](defaultPatternCacheSize)
	g := &Guard{
		store:    store,
		patterns: cache,
		logger:   slog.Default(),
		tracer:   otel.Tracer("tollgate/internal/idempotency"),
		auditor:  audit.NopAuditor{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Claim records the request id when the path is guarded. A second claim of
// the same id within the TTL fails with CodeDuplicateRequest; other store
// failures are returned unchanged.
func (g *Guard) Claim(ctx context.Context, in ClaimInput) error {
	if in.Options == nil || in.RequestID == "" || g.store == nil || !supportedKinds[g.store.Kind()] {
		g.metrics.IncClaim("skipped")
		return nil
	}
	if !g.matches(ctx, in.Options.Paths, normalizePath(in.Path)) {
		g.metrics.IncClaim("skipped")
		return nil
	}

	ctx, span := g.tracer.Start(ctx, "idempotency.Claim",
		trace.WithAttributes(attribute.String("idempotency.store", g.store.Kind())))
	defer span.End()

	ttl := in.Options.TTL
	if ttl <= 0 {
		ttl = tenantmodels.DefaultIdempotencyTTL
	}
	rec := models.Record{
		AppID:     in.AppID,
		RequestID: in.RequestID,
		ExpireAt:  requestcontext.Now(ctx).Add(ttl),
	}

	// A client disconnect must not abandon a half-made claim.
	start := time.Now()
	err := g.store.Create(context.WithoutCancel(ctx), rec)
	g.metrics.ObserveClaim(time.Since(start).Seconds())

	switch {
	case err == nil:
		g.metrics.IncClaim("claimed")
		return nil
	case errors.Is(err, sentinel.ErrConflict):
		g.metrics.IncClaim("duplicate")
		span.SetAttributes(attribute.Bool("idempotency.duplicate", true))
		g.auditor.Emit(ctx, audit.SecurityEvent{
			AppID:  in.AppID,
			Action: audit.ActionDuplicateRequest,
			Reason: in.RequestID,
			IP:     requestcontext.ClientIP(ctx),
			Path:   in.Path,
		})
		return dErrors.New(dErrors.CodeDuplicateRequest, "Duplicate request")
	default:
		g.metrics.IncClaim("error")
		span.RecordError(err)
		g.logger.ErrorContext(ctx, "failed to create idempotency record",
			"error", err,
			"app_id", in.AppID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return err
	}
}

func (g *Guard) matches(ctx context.Context, patterns []string, path string) bool {
	for _, p := range patterns {
		re, err := g.compile(p)
		if err != nil {
			g.logger.WarnContext(ctx, "ignoring invalid idempotency path pattern",
				"pattern", p,
				"error", err,
			)
			continue
		}
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func (g *Guard) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := g.patterns.Get(pattern); ok {
		return re, nil
	}
	anchored := pattern
	if !strings.HasPrefix(anchored, "^") {
		anchored = "^" + anchored
	}
	re, err := regexp.Compile(anchored)
	if err != nil {
		return nil, err
	}
	g.patterns.Add(pattern, re)
	return re, nil
}

// normalizePath strips one leading and one trailing slash so configured
// patterns can omit them.
func normalizePath(path string) string {
	path = strings.TrimPrefix(path, "/")
	return strings.TrimSuffix(path, "/")
}
