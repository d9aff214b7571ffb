package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tollgate/internal/admission"
	"tollgate/internal/platform/metrics"
	rlhandler "tollgate/internal/ratelimit/handler"
	"tollgate/pkg/platform/httputil"
	"tollgate/pkg/platform/middleware/admin"
	authmw "tollgate/pkg/platform/middleware/auth"
	"tollgate/pkg/platform/middleware/metadata"
	"tollgate/pkg/platform/middleware/requestid"
	"tollgate/pkg/platform/middleware/requesttime"
	"tollgate/pkg/requestcontext"
)

// idempotentPrefixes are the route prefixes whose write methods pass the
// idempotency guard.
var idempotentPrefixes = []string{"/classes", "/functions"}

type healthCheck func(ctx context.Context) error

type routerDeps struct {
	pipeline   *admission.Pipeline
	clientIPs  *metadata.Resolver
	limits     rlhandler.Service
	validator  authmw.JWTValidator
	registry   *prometheus.Registry
	adminToken string
	checks     map[string]healthCheck
	logger     *slog.Logger
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(d.clientIPs.ClientMetadata)
	r.Use(d.pipeline.AccessLog)

	r.Get("/health", healthHandler(d.checks))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(d.registry))

	r.Group(func(ar chi.Router) {
		ar.Use(admin.RequireAdminToken(d.adminToken, d.logger))
		rlhandler.New(d.limits, d.logger).RegisterAdmin(ar)
	})

	mount := func(api chi.Router) {
		api.Use(authmw.OptionalBearer(d.validator, d.logger))
		api.Use(d.pipeline.Middleware()...)

		api.With(d.pipeline.EnforceMasterKey).HandleFunc("/admin/*", echo)
		for _, prefix := range idempotentPrefixes {
			api.With(writesOnly(d.pipeline.EnsureIdempotency)).HandleFunc(prefix+"/*", echo)
		}
		api.HandleFunc("/*", echo)
	}
	if d.pipeline.MountPath() == "" {
		r.Group(mount)
	} else {
		r.Route(d.pipeline.MountPath(), mount)
	}

	return otelhttp.NewHandler(r, "tollgate")
}

// writesOnly applies mw to methods that change state. The method is read at
// request time so a body override is honoured.
func writesOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				guarded.ServeHTTP(w, r)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

type echoResponse struct {
	AppID     string `json:"app_id"`
	Tier      string `json:"tier"`
	UserID    string `json:"user_id,omitempty"`
	ReadOnly  bool   `json:"read_only"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	RequestID string `json:"request_id"`
}

// echo stands in for the application behind the gateway and reports how the
// request was admitted.
func echo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, ok := admission.FromContext(ctx)
	if !ok || st.Auth == nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "request was not admitted"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, echoResponse{
		AppID:     st.Tenant.AppID,
		Tier:      string(st.Auth.Tier),
		UserID:    st.Auth.UserID(),
		ReadOnly:  st.Auth.IsReadOnly,
		Method:    r.Method,
		Path:      st.Path,
		RequestID: requestcontext.RequestID(ctx),
	})
}

func healthHandler(checks map[string]healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}
