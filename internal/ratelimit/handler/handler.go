// Package handler exposes operator endpoints for inspecting rate limit rules
// and clearing counters.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tollgate/internal/ratelimit/models"
	dErrors "tollgate/pkg/domain-errors"
	"tollgate/pkg/platform/httputil"
	"tollgate/pkg/requestcontext"
)

// Service is the slice of the rate limit engine the handler drives.
type Service interface {
	Rules(appID string) []*models.Rule
	Reset(ctx context.Context, appID string, zone models.Zone, value string) error
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterAdmin mounts the routes on r. Callers guard r with admin auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/rate-limit/{appID}/rules", h.HandleListRules)
	r.Post("/admin/rate-limit/{appID}/reset", h.HandleReset)
}

type RuleResponse struct {
	ID                      string   `json:"id"`
	RequestPath             string   `json:"request_path"`
	RequestTimeWindowMillis int64    `json:"request_time_window"`
	RequestCount            int      `json:"request_count"`
	Zone                    string   `json:"zone"`
	RequestMethods          []string `json:"request_methods,omitempty"`
	IncludeMasterKey        bool     `json:"include_master_key"`
	IncludeInternalRequests bool     `json:"include_internal_requests"`
}

type ResetRequest struct {
	Zone  models.Zone `json:"zone"`
	Value string      `json:"value"`
}

func (h *Handler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	rules := h.svc.Rules(appID)
	out := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, RuleResponse{
			ID:                      rule.ID,
			RequestPath:             rule.Path,
			RequestTimeWindowMillis: rule.Window.Milliseconds(),
			RequestCount:            rule.Max,
			Zone:                    string(rule.Zone),
			RequestMethods:          rule.Methods,
			IncludeMasterKey:        rule.IncludeMasterKey,
			IncludeInternalRequests: rule.IncludeInternalRequests,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID := chi.URLParam(r, "appID")

	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Invalid JSON"))
		return
	}
	if !req.Zone.IsValid() || req.Value == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "zone and value are required"))
		return
	}

	if err := h.svc.Reset(ctx, appID, req.Zone, req.Value); err != nil {
		h.logger.ErrorContext(ctx, "failed to reset rate limit counters",
			"error", err,
			"app_id", appID,
			"zone", req.Zone,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset counters"))
		return
	}
	h.logger.InfoContext(ctx, "rate limit counters reset",
		"app_id", appID,
		"zone", req.Zone,
		"request_id", requestcontext.RequestID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}
