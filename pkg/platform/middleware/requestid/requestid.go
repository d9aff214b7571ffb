// Package requestid assigns a correlation id to every inbound request.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"tollgate/pkg/requestcontext"
)

// Header carries the correlation id on requests and responses.
const Header = "X-Request-ID"

// Middleware reuses an inbound X-Request-ID or generates a new one, stores it
// in the context and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}
