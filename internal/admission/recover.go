package admission

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"tollgate/pkg/platform/httputil"
	"tollgate/pkg/requestcontext"
)

// Recoverer turns a handler panic into a 500 "Internal server error." body.
func (p *Pipeline) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			ctx := r.Context()
			p.metrics.IncPanic()
			p.logger.ErrorContext(ctx, "Uncaught internal server error.",
				"panic", rec,
				"stack", string(debug.Stack()),
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, errors.New("panic"))
		}()
		next.ServeHTTP(w, r)
	})
}

// AccessLog logs one line per request once the response is written.
func (p *Pipeline) AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		ctx := r.Context()
		p.logger.InfoContext(ctx, "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", requestcontext.RequestID(ctx),
		)
	})
}
