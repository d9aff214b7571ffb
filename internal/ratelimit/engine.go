// Package ratelimit admits or rejects requests against per-tenant rules.
//
// Every rule whose path pattern matches is evaluated concurrently; the
// request is rejected if any of them is over its limit. Counter store
// failures are logged and never reject a request.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	authmodels "tollgate/internal/auth/models"
	"tollgate/internal/ippolicy"
	rlmetrics "tollgate/internal/ratelimit/metrics"
	"tollgate/internal/ratelimit/models"
	"tollgate/internal/ratelimit/store/counter"
	dErrors "tollgate/pkg/domain-errors"
	audit "tollgate/pkg/platform/audit"
)

const (
	storeKindMemory = "memory"
	storeKindRedis  = "redis"
)

// Request is the view of an inbound call the engine needs.
type Request struct {
	AppID        string
	Path         string
	Method       string
	ClientIP     string
	SessionToken string
	// Auth is nil while session resolution is deferred.
	Auth    *authmodels.AuthContext
	Pending SessionResolver
}

type boundRule struct {
	*models.Rule
	store     CounterStore
	storeKind string
}

type ruleTable map[string][]*boundRule

type Engine struct {
	mu       sync.Mutex
	rules    atomic.Pointer[ruleTable]
	redis    map[string]CounterStore
	newRedis func(url string) (CounterStore, error)

	logger  *slog.Logger
	metrics *rlmetrics.Metrics
	tracer  trace.Tracer
	auditor audit.SecurityAuditor
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *rlmetrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithAuditor(a audit.SecurityAuditor) Option {
	return func(e *Engine) { e.auditor = a }
}

// WithRedisFactory replaces how a distributed store is built for a rule's
// redis URL. Stores are shared by every rule naming the same URL.
func WithRedisFactory(f func(url string) (CounterStore, error)) Option {
	return func(e *Engine) { e.newRedis = f }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		redis:   make(map[string]CounterStore),
		logger:  slog.Default(),
		tracer:  otel.Tracer("tollgate/internal/ratelimit"),
		auditor: audit.NopAuditor{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.newRedis == nil {
		e.newRedis = func(url string) (CounterStore, error) {
			return counter.NewDistributedFromURL(url, counter.WithLogger(e.logger))
		}
	}
	empty := ruleTable{}
	e.rules.Store(&empty)
	return e
}

// AddRule validates opts and appends a rule for the tenant.
func (e *Engine) AddRule(appID string, opts models.Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := *e.rules.Load()
	existing := cur[appID]
	rule, err := e.bind(existing, opts)
	if err != nil {
		return err
	}
	rules := make([]*boundRule, 0, len(existing)+1)
	rules = append(rules, existing...)
	rules = append(rules, rule)
	e.publish(cur, appID, rules)
	return nil
}

// LoadTenant replaces every rule of the tenant. Nothing changes if any of
// the options is invalid.
func (e *Engine) LoadTenant(appID string, opts []models.Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rules := make([]*boundRule, 0, len(opts))
	for i, o := range opts {
		rule, err := e.bind(rules, o)
		if err != nil {
			return fmt.Errorf("rate limit %d for %s: %w", i, appID, err)
		}
		rules = append(rules, rule)
	}
	e.publish(*e.rules.Load(), appID, rules)
	return nil
}

func (e *Engine) RemoveTenant(appID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publish(*e.rules.Load(), appID, nil)
}

// Rules returns the compiled rules of a tenant in registration order.
func (e *Engine) Rules(appID string) []*models.Rule {
	bound := (*e.rules.Load())[appID]
	out := make([]*models.Rule, len(bound))
	for i, r := range bound {
		out[i] = r.Rule
	}
	return out
}

// publish must be called with e.mu held.
func (e *Engine) publish(cur ruleTable, appID string, rules []*boundRule) {
	next := maps.Clone(cur)
	if len(rules) == 0 {
		delete(next, appID)
	} else {
		next[appID] = rules
	}
	e.rules.Store(&next)

	total := 0
	for _, rs := range next {
		total += len(rs)
	}
	e.metrics.SetRules(total)
}

// bind must be called with e.mu held. Identical rules of one tenant get
// numbered IDs so each keeps its own counter.
func (e *Engine) bind(siblings []*boundRule, opts models.Options) (*boundRule, error) {
	rule, err := models.NewRule(opts)
	if err != nil {
		return nil, err
	}
	base := rule.ID
	for n := 1; slices.ContainsFunc(siblings, func(b *boundRule) bool { return b.ID == rule.ID }); n++ {
		rule.ID = fmt.Sprintf("%s-%d", base, n)
	}
	if opts.RedisURL == "" {
		return &boundRule{Rule: rule, store: counter.NewInMemory(), storeKind: storeKindMemory}, nil
	}
	store, ok := e.redis[opts.RedisURL]
	if !ok {
		store, err = e.newRedis(opts.RedisURL)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "rate limit redis_url is invalid")
		}
		e.redis[opts.RedisURL] = store
	}
	return &boundRule{Rule: rule, store: store, storeKind: storeKindRedis}, nil
}

// Admit evaluates every matching rule and returns a CodeRateLimited error
// carrying the first over-limit rule's message, in registration order.
func (e *Engine) Admit(ctx context.Context, req Request) error {
	rules := (*e.rules.Load())[req.AppID]
	if len(rules) == 0 {
		return nil
	}

	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "ratelimit.Admit")
	defer func() {
		span.End()
		e.metrics.ObserveAdmit(time.Since(start).Seconds())
	}()

	over := make([]bool, len(rules))
	var g errgroup.Group
	matched := 0
	for i, r := range rules {
		if !r.Matches(req.Path) {
			continue
		}
		matched++
		g.Go(func() error {
			over[i] = e.evaluate(ctx, r, req)
			return nil
		})
	}
	_ = g.Wait()
	span.SetAttributes(attribute.Int("ratelimit.rules_matched", matched))

	for i, r := range rules {
		if !over[i] {
			continue
		}
		span.SetAttributes(attribute.String("ratelimit.rejected_by", r.Path))
		e.metrics.IncRejection(string(r.Zone))
		e.auditor.Emit(ctx, audit.SecurityEvent{
			AppID:  req.AppID,
			Action: audit.ActionRateLimitExceeded,
			Reason: string(r.Zone),
			IP:     req.ClientIP,
			Path:   req.Path,
		})
		return dErrors.New(dErrors.CodeRateLimited, r.Message)
	}
	return nil
}

// evaluate reports whether the request pushed the rule over its limit.
func (e *Engine) evaluate(ctx context.Context, r *boundRule, req Request) bool {
	if reason := skipReason(r.Rule, req); reason != "" {
		e.metrics.IncSkip(reason)
		return false
	}
	key := models.CounterKey(req.AppID, r.ID, e.zoneKey(ctx, r.Zone, req))
	count, err := r.store.Increment(ctx, key, r.Window)
	if err != nil {
		e.metrics.IncStoreError(r.storeKind)
		e.logger.ErrorContext(ctx, "An unknown error occurred when attempting to apply the rate limiter",
			"error", err,
			"app_id", req.AppID,
			"rule", r.Path,
			"store", r.storeKind,
		)
		return false
	}
	return count.Hits > r.Max
}

// skipReason returns why a matching rule does not count this request, or ""
// when it does.
func skipReason(r *models.Rule, req Request) string {
	if !r.IncludeInternalRequests && ippolicy.IsLoopback(req.ClientIP) {
		return "internal"
	}
	if r.IncludeMasterKey {
		return ""
	}
	if !r.AppliesToMethod(req.Method) {
		return "method"
	}
	if req.Auth.IsMaster() {
		return "master"
	}
	return ""
}

func (e *Engine) zoneKey(ctx context.Context, zone models.Zone, req Request) string {
	switch zone {
	case models.ZoneGlobal:
		return zoneValue(models.ZoneGlobal, req.AppID)
	case models.ZoneSession:
		if req.SessionToken != "" {
			return zoneValue(models.ZoneSession, req.SessionToken)
		}
	case models.ZoneUser:
		if id := e.userID(ctx, req); id != "" {
			return zoneValue(models.ZoneUser, id)
		}
	}
	return zoneValue(models.ZoneIP, req.ClientIP)
}

// userID resolves the caller's user, triggering the deferred session lookup
// if needed. Lookup failures fall back to the IP zone; the session stage
// reports them.
func (e *Engine) userID(ctx context.Context, req Request) string {
	if req.Auth != nil {
		return req.Auth.UserID()
	}
	if req.Pending == nil || req.SessionToken == "" {
		return ""
	}
	auth, err := req.Pending.Resolve(ctx)
	if err != nil {
		return ""
	}
	return auth.UserID()
}

func zoneValue(zone models.Zone, v string) string {
	return string(zone) + "=" + v
}

// Reset clears the tenant's counters for one zone value, such as an IP or
// user id. Rules in other zones that fall back to the IP zone are cleared too
// when zone is ZoneIP.
func (e *Engine) Reset(ctx context.Context, appID string, zone models.Zone, value string) error {
	var errs []error
	for _, r := range (*e.rules.Load())[appID] {
		if r.Zone != zone && zone != models.ZoneIP {
			continue
		}
		key := models.CounterKey(appID, r.ID, zoneValue(zone, value))
		if err := r.store.Reset(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("reset %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases distributed store connections.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for url, s := range e.redis {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(e.redis, url)
	}
	return errors.Join(errs...)
}
