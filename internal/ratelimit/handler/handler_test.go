package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"tollgate/internal/ratelimit"
	"tollgate/internal/ratelimit/models"
)

// HandlerSuite drives the admin routes against a real engine.
type HandlerSuite struct {
	suite.Suite
	engine *ratelimit.Engine
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.engine = ratelimit.New(ratelimit.WithLogger(logger))
	s.Require().NoError(s.engine.AddRule("app", models.Options{
		RequestPath:       "/functions/*",
		RequestTimeWindow: time.Minute,
		RequestCount:      1,
		RequestMethods:    []string{"POST"},
	}))

	r := chi.NewRouter()
	New(s.engine, logger).RegisterAdmin(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestListRules() {
	rec := s.do(http.MethodGet, "/admin/rate-limit/app/rules", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var rules []RuleResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&rules))
	s.Require().Len(rules, 1)
	s.Equal("/functions/*", rules[0].RequestPath)
	s.Equal(int64(60000), rules[0].RequestTimeWindowMillis)
	s.Equal("ip", rules[0].Zone)
	s.Equal([]string{"POST"}, rules[0].RequestMethods)

	s.Run("unknown tenant lists nothing", func() {
		rec := s.do(http.MethodGet, "/admin/rate-limit/other/rules", nil)
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`[]`, rec.Body.String())
	})
}

func (s *HandlerSuite) TestReset() {
	ctx := context.Background()
	req := ratelimit.Request{AppID: "app", Path: "/functions/x", Method: "POST", ClientIP: "10.0.0.1"}
	s.NoError(s.engine.Admit(ctx, req))
	s.Error(s.engine.Admit(ctx, req))

	rec := s.do(http.MethodPost, "/admin/rate-limit/app/reset", []byte(`{"zone":"ip","value":"10.0.0.1"}`))
	s.Require().Equal(http.StatusNoContent, rec.Code)
	s.NoError(s.engine.Admit(ctx, req))
}

func (s *HandlerSuite) TestResetRejectsBadInput() {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid JSON", body: "not valid json"},
		{name: "unknown zone", body: `{"zone":"planet","value":"x"}`},
		{name: "missing value", body: `{"zone":"ip"}`},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(http.MethodPost, "/admin/rate-limit/app/reset", []byte(tt.body))
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}
