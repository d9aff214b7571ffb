package metadata

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"tollgate/internal/ippolicy"
	"tollgate/pkg/requestcontext"
)

// Resolver determines the caller address for a request. Forwarding headers
// are honoured only when the direct peer is one of the trusted proxies.
type Resolver struct {
	trusted *ippolicy.Policy
}

// NewResolver builds a resolver for the given proxy addresses and CIDRs.
// An empty list means the direct peer is always the client.
func NewResolver(trustedProxies []string) (*Resolver, error) {
	if len(trustedProxies) == 0 {
		return &Resolver{}, nil
	}
	p := ippolicy.New(trustedProxies)
	if bad := p.Invalid(); len(bad) > 0 {
		return nil, fmt.Errorf("invalid trusted proxies %v", bad)
	}
	return &Resolver{trusted: p}, nil
}

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by the admission services.
// This middleware should be applied early in the chain.
func (res *Resolver) ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), res.ClientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the caller address. When the peer is a trusted proxy the
// rightmost untrusted X-Forwarded-For hop wins, then X-Real-IP.
func (res *Resolver) ClientIP(r *http.Request) string {
	peer := PeerIP(r)
	if res == nil || res.trusted == nil || !res.trusted.Allowed(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := res.rightmostUntrusted(xff); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

// Proxies append to the right, so walking leftwards past trusted hops lands
// on the address the first trusted proxy saw.
func (res *Resolver) rightmostUntrusted(xff string) string {
	parts := strings.Split(xff, ",")
	first := ""
	for i := len(parts) - 1; i >= 0; i-- {
		ip := strings.TrimSpace(parts[i])
		if ip == "" {
			continue
		}
		if !res.trusted.Allowed(ip) {
			return ip
		}
		first = ip
	}
	return first
}

// PeerIP returns the address of the direct peer, ignoring forwarding headers.
func PeerIP(r *http.Request) string {
	addr := r.RemoteAddr
	if addr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
