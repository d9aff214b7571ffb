package admission

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tollgate/internal/auth"
	authmodels "tollgate/internal/auth/models"
	"tollgate/internal/credentials"
	"tollgate/internal/idempotency"
	"tollgate/internal/ratelimit"
	dErrors "tollgate/pkg/domain-errors"
	"tollgate/pkg/requestcontext"
)

const (
	allowMethods  = "GET,PUT,POST,DELETE,OPTIONS"
	exposeHeaders = "X-Tollgate-Job-Status-Id, X-Tollgate-Push-Status-Id"
)

// AllowCrossDomain answers CORS preflights and decorates every response
// with the tenant's allowed origins and headers.
func (p *Pipeline) AllowCrossDomain(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := credentials.DefaultAllowedHeaders
		origins := []string{"*"}
		if tenant, ok := p.tenants.Lookup(r.Header.Get(credentials.HeaderApplicationID)); ok {
			if len(tenant.AllowHeaders) > 0 {
				headers = slices.Concat(headers, tenant.AllowHeaders)
			}
			if len(tenant.AllowOrigin) > 0 {
				origins = tenant.AllowOrigin
			}
		}

		allowOrigin := origins[0]
		if origin := r.Header.Get("Origin"); origin != "" && slices.Contains(origins, origin) {
			allowOrigin = origin
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
		h.Set("Access-Control-Expose-Headers", exposeHeaders)
		if allowOrigin != "*" {
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AllowMethodOverride lets POST requests carry their real method in the
// "_method" body field.
func (p *Pipeline) AllowMethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		body, r, err := p.readBody(r)
		if err != nil {
			p.fail(w, r, "method_override", dErrors.Wrap(err, dErrors.CodeBadRequest, "Invalid request body"))
			return
		}
		if body != nil && body.Fields != nil {
			if m, ok := body.Fields[credentials.FieldMethod].(string); ok && m != "" {
				delete(body.Fields, credentials.FieldMethod)
				r.Method = strings.ToUpper(m)
			}
		}
		if body != nil {
			if err := body.Restore(r); err != nil {
				p.fail(w, r, "method_override", err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HandleHeaders extracts credentials, checks the tenant, resolves the caller
// and applies rate limits. Session lookups are left to HandleSession unless a
// user-zone rule forces them earlier.
func (p *Pipeline) HandleHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := p.tracer.Start(r.Context(), "admission.HandleHeaders")
		defer span.End()
		r = r.WithContext(ctx)

		start := time.Now()
		body, r, err := p.readBody(r)
		if err != nil {
			p.fail(w, r, "extract", dErrors.Wrap(err, dErrors.CodeBadRequest, "Invalid request body"))
			return
		}
		info, err := p.extractor.Extract(r, body)
		if err != nil {
			p.fail(w, r, "extract", err)
			return
		}
		if body != nil {
			if err := body.Restore(r); err != nil {
				p.fail(w, r, "extract", err)
				return
			}
		}
		if info.ContentType != "" {
			r.Header.Set("Content-Type", info.ContentType)
		}
		p.observe("extract", start)

		tenant, ok := p.tenants.Lookup(info.AppID)
		if !ok {
			p.fail(w, r, "tenant", dErrors.New(dErrors.CodeInvalidRequest, "application id not registered"))
			return
		}
		if !tenant.IsReady() {
			p.fail(w, r, "tenant", dErrors.New(dErrors.CodeInternal, fmt.Sprintf("Invalid server state: %s", tenant.State)))
			return
		}
		span.SetAttributes(attribute.String("tollgate.app_id", tenant.AppID))

		start = time.Now()
		st := &State{
			Info:     info,
			Tenant:   tenant,
			Path:     p.relativePath(r),
			ClientIP: p.clientIP(r),
		}
		in := auth.Input{Info: info, Tenant: tenant, ClientIP: st.ClientIP, Path: st.Path}
		if uid := requestcontext.VerifiedUserID(ctx); uid != "" {
			in.Identity = &authmodels.User{ID: uid}
		}
		res, err := p.resolver.Resolve(ctx, in)
		if err != nil {
			p.fail(w, r, "auth", err)
			return
		}
		st.Auth, st.Pending = res.Auth, res.Pending
		p.observe("auth", start)

		ctx = withState(ctx, st)
		r = r.WithContext(ctx)

		if p.limiter != nil {
			start = time.Now()
			req := ratelimit.Request{
				AppID:        tenant.AppID,
				Path:         st.Path,
				Method:       r.Method,
				ClientIP:     st.ClientIP,
				SessionToken: info.SessionToken,
				Auth:         st.Auth,
			}
			if st.Pending != nil {
				req.Pending = st.Pending
			}
			if err := p.limiter.Admit(ctx, req); err != nil {
				p.fail(w, r, "ratelimit", err)
				return
			}
			p.observe("ratelimit", start)
		}

		next.ServeHTTP(w, r)
	})
}

// HandleSession completes a deferred session lookup.
func (p *Pipeline) HandleSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, ok := FromContext(r.Context())
		if !ok {
			p.fail(w, r, "session", dErrors.New(dErrors.CodeInvariantViolation, "session stage requires admission state"))
			return
		}
		if st.Auth == nil {
			if st.Pending == nil {
				p.fail(w, r, "session", dErrors.New(dErrors.CodeInvariantViolation, "request has neither auth nor pending session"))
				return
			}
			start := time.Now()
			a, err := st.Pending.Resolve(r.Context())
			if err != nil {
				p.fail(w, r, "session", err)
				return
			}
			st.Auth = a
			p.observe("session", start)
		}
		p.metrics.IncAdmitted()
		next.ServeHTTP(w, r)
	})
}

// EnsureIdempotency rejects replays of a request id on guarded paths.
func (p *Pipeline) EnsureIdempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, ok := FromContext(r.Context())
		if p.guard == nil || !ok {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		err := p.guard.Claim(r.Context(), idempotency.ClaimInput{
			AppID:     st.Tenant.AppID,
			RequestID: r.Header.Get(credentials.HeaderRequestID),
			Path:      st.Path,
			Options:   st.Tenant.Idempotency,
		})
		if err != nil {
			p.fail(w, r, "idempotency", err)
			return
		}
		p.observe("idempotency", start)
		next.ServeHTTP(w, r)
	})
}

// EnforceMasterKey admits only master and read-only master callers.
func (p *Pipeline) EnforceMasterKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !AuthFromContext(r.Context()).IsMaster() {
			p.fail(w, r, "master_key", dErrors.New(dErrors.CodeForbidden, "master key is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
