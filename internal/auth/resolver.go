// Package auth turns extracted credentials into a privilege tier.
//
// Resolution walks an ordered list of checks; the first check that matches
// or rejects ends the walk. A request carrying an unverified session token
// resolves to a Pending cell that a later stage completes.
package auth

import (
	"context"
	"fmt"
	"log/slog"

	authmetrics "tollgate/internal/auth/metrics"
	"tollgate/internal/auth/models"
	"tollgate/internal/credentials"
	"tollgate/internal/ippolicy"
	tenantmodels "tollgate/internal/tenant/models"
	dErrors "tollgate/pkg/domain-errors"
	audit "tollgate/pkg/platform/audit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	loginPath          = "/login"
	upgradeSessionPath = "/upgradeToRevocableSession"
)

// Input is everything the resolver reads. Info.SessionToken is cleared for
// login requests.
type Input struct {
	Info     *credentials.RequestInfo
	Tenant   *tenantmodels.Tenant
	ClientIP string
	// Path is relative to the mount point and carries no query string.
	Path string
	// Identity is a user already verified upstream, such as by a bearer token.
	Identity *models.User
}

// Resolution carries exactly one of Auth or Pending.
type Resolution struct {
	Auth    *models.AuthContext
	Pending *Pending
}

type outcome int

const (
	proceed outcome = iota
	matched
	rejected
)

type verdict struct {
	outcome outcome
	auth    *models.AuthContext
	err     error
}

func next() verdict { return verdict{outcome: proceed} }

func match(a *models.AuthContext) verdict { return verdict{outcome: matched, auth: a} }

func reject(err error) verdict { return verdict{outcome: rejected, err: err} }

type check struct {
	name string
	eval func(ctx context.Context, in *Input) verdict
}

type Resolver struct {
	sessions SessionStore
	checks   []check
	logger   *slog.Logger
	auditor  audit.SecurityAuditor
	metrics  *authmetrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithAuditor(a audit.SecurityAuditor) Option {
	return func(r *Resolver) { r.auditor = a }
}

func WithMetrics(m *authmetrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

func New(sessions SessionStore, opts ...Option) (*Resolver, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	r := &Resolver{
		sessions: sessions,
		logger:   slog.Default(),
		auditor:  audit.NopAuditor{},
		tracer:   otel.Tracer("tollgate/internal/auth"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.checks = []check{
		{"maintenance_key", r.checkMaintenanceKey},
		{"master_key", r.checkMasterKey},
		{"read_only_master_key", r.checkReadOnlyMasterKey},
		{"client_keys", r.checkClientKeys},
		{"login", r.checkLogin},
		{"verified_identity", r.checkIdentity},
		{"anonymous", r.checkAnonymous},
	}
	return r, nil
}

// Resolve runs the precedence chain. A nil error always comes with a
// Resolution holding either Auth or Pending.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "auth.Resolve")
	defer span.End()

	if in.Info == nil || in.Tenant == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "auth input requires request info and tenant")
	}

	for _, c := range r.checks {
		v := c.eval(ctx, &in)
		switch v.outcome {
		case matched:
			span.SetAttributes(attribute.String("auth.check", c.name), attribute.String("auth.tier", string(v.auth.Tier)))
			r.metrics.IncResolved(string(v.auth.Tier))
			return &Resolution{Auth: v.auth}, nil
		case rejected:
			span.SetAttributes(attribute.String("auth.check", c.name), attribute.Bool("auth.rejected", true))
			r.metrics.IncResolved("rejected")
			return nil, v.err
		}
	}

	span.SetAttributes(attribute.Bool("auth.pending", true))
	r.metrics.IncResolved("pending")
	return &Resolution{Pending: r.newPending(in)}, nil
}

func (r *Resolver) checkMaintenanceKey(ctx context.Context, in *Input) verdict {
	if !in.Tenant.MatchesMaintenanceKey(in.Info.MaintenanceKey) {
		return next()
	}
	if allowed(in.Tenant.MaintenanceKeyPolicy(), in.ClientIP) {
		return match(&models.AuthContext{
			Tier:           models.TierMaintenance,
			InstallationID: in.Info.InstallationID,
		})
	}
	r.logger.ErrorContext(ctx, fmt.Sprintf(
		"Request using maintenance key rejected as the request IP address '%s' is not in maintenance_key_ips", in.ClientIP),
		"app_id", in.Tenant.AppID,
	)
	r.metrics.IncKeyIPRejected("maintenance")
	r.auditor.Emit(ctx, audit.SecurityEvent{
		AppID:  in.Tenant.AppID,
		Action: audit.ActionMaintenanceKeyIPRejected,
		Reason: "ip_not_allowed",
		IP:     in.ClientIP,
		Path:   in.Path,
	})
	return next()
}

func (r *Resolver) checkMasterKey(ctx context.Context, in *Input) verdict {
	if !in.Tenant.MatchesMasterKey(in.Info.MasterKey) {
		return next()
	}
	if allowed(in.Tenant.MasterKeyPolicy(), in.ClientIP) {
		return match(&models.AuthContext{
			Tier:           models.TierMaster,
			InstallationID: in.Info.InstallationID,
		})
	}
	r.logger.ErrorContext(ctx, fmt.Sprintf(
		"Request using master key rejected as the request IP address '%s' is not in master_key_ips", in.ClientIP),
		"app_id", in.Tenant.AppID,
	)
	r.metrics.IncKeyIPRejected("master")
	r.auditor.Emit(ctx, audit.SecurityEvent{
		AppID:  in.Tenant.AppID,
		Action: audit.ActionMasterKeyIPRejected,
		Reason: "ip_not_allowed",
		IP:     in.ClientIP,
		Path:   in.Path,
	})
	return next()
}

func (r *Resolver) checkReadOnlyMasterKey(_ context.Context, in *Input) verdict {
	if !in.Tenant.MatchesReadOnlyMasterKey(in.Info.MasterKey) {
		return next()
	}
	return match(&models.AuthContext{
		Tier:           models.TierReadOnlyMaster,
		InstallationID: in.Info.InstallationID,
		IsReadOnly:     true,
	})
}

// checkClientKeys only validates when the tenant configured at least one
// client key kind.
func (r *Resolver) checkClientKeys(_ context.Context, in *Input) verdict {
	configured := in.Tenant.ClientKeys()
	if len(configured) == 0 {
		return next()
	}
	for kind, want := range configured {
		if tenantmodels.KeyEqual(in.Info.ClientKeyFor(kind), want) {
			return next()
		}
	}
	return reject(dErrors.New(dErrors.CodeInvalidRequest, "unauthorized"))
}

func (r *Resolver) checkLogin(_ context.Context, in *Input) verdict {
	if in.Path == loginPath {
		in.Info.SessionToken = ""
	}
	return next()
}

func (r *Resolver) checkIdentity(_ context.Context, in *Input) verdict {
	if in.Identity == nil {
		return next()
	}
	return match(&models.AuthContext{
		Tier:           models.TierUser,
		InstallationID: in.Info.InstallationID,
		User:           in.Identity,
	})
}

func (r *Resolver) checkAnonymous(_ context.Context, in *Input) verdict {
	if in.Info.SessionToken != "" {
		return next()
	}
	return match(&models.AuthContext{
		Tier:           models.TierAnonymous,
		InstallationID: in.Info.InstallationID,
	})
}

func allowed(p *ippolicy.Policy, ip string) bool {
	if p == nil {
		return false
	}
	return p.Allowed(ip)
}
