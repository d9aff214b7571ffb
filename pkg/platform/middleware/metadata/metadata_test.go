package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tollgate/pkg/requestcontext"
)

func TestClientIP(t *testing.T) {
	proxied, err := NewResolver([]string{"10.0.0.0/8", "::1"})
	require.NoError(t, err)
	direct, err := NewResolver(nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		resolver *Resolver
		headers  map[string]string
		remote   string
		want     string
	}{
		{name: "forwarding headers ignored without trusted proxies", resolver: direct, headers: map[string]string{"X-Forwarded-For": "127.0.0.1", "X-Real-IP": "127.0.0.1"}, remote: "203.0.113.9:1234", want: "203.0.113.9"},
		{name: "untrusted peer cannot forward", resolver: proxied, headers: map[string]string{"X-Forwarded-For": "127.0.0.1"}, remote: "203.0.113.9:1234", want: "203.0.113.9"},
		{name: "trusted peer uses rightmost untrusted hop", resolver: proxied, headers: map[string]string{"X-Forwarded-For": "127.0.0.1, 198.51.100.4, 10.0.0.7"}, remote: "10.0.0.2:1234", want: "198.51.100.4"},
		{name: "all hops trusted falls back to leftmost", resolver: proxied, headers: map[string]string{"X-Forwarded-For": "10.1.1.1, 10.0.0.7"}, remote: "10.0.0.2:1234", want: "10.1.1.1"},
		{name: "trusted peer with real ip header", resolver: proxied, headers: map[string]string{"X-Real-IP": " 198.51.100.2 "}, remote: "[::1]:80", want: "198.51.100.2"},
		{name: "trusted peer without headers", resolver: proxied, remote: "10.0.0.2:1234", want: "10.0.0.2"},
		{name: "ipv6 remote addr", resolver: direct, remote: "[::1]:5555", want: "::1"},
		{name: "nil resolver uses peer", resolver: nil, headers: map[string]string{"X-Forwarded-For": "127.0.0.1"}, remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "no address", resolver: direct, remote: "", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.resolver.ClientIP(r))
		})
	}
}

func TestNewResolverRejectsBadEntries(t *testing.T) {
	_, err := NewResolver([]string{"10.0.0.0/8", "not-an-ip"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-ip")
}

func TestClientMetadata(t *testing.T) {
	res, err := NewResolver(nil)
	require.NoError(t, err)

	var gotIP, gotUA string
	h := res.ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:443"
	r.Header.Set("User-Agent", "sdk/1.0")
	r.Header.Set("X-Forwarded-For", "127.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "192.0.2.10", gotIP)
	assert.Equal(t, "sdk/1.0", gotUA)
}
