package models

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"tollgate/internal/ippolicy"
	ratelimitmodels "tollgate/internal/ratelimit/models"
	dErrors "tollgate/pkg/domain-errors"
	platformstrings "tollgate/pkg/platform/strings"
)

// State is the lifecycle state of a tenant's server configuration. Only
// StateOK tenants may serve requests.
type State string

const (
	StateOK          State = "ok"
	StateInitialized State = "initialized"
	StateDeleted     State = "deleted"
)

// DefaultKeyIPs is applied to master and maintenance key allowlists that are
// not configured at all.
var DefaultKeyIPs = []string{"127.0.0.1", "::1"}

// DefaultIdempotencyTTL is used when idempotency is enabled without a TTL.
const DefaultIdempotencyTTL = 300 * time.Second

// IdempotencyOptions enables request deduplication for matching paths.
type IdempotencyOptions struct {
	Paths []string      `koanf:"paths" json:"paths"`
	TTL   time.Duration `koanf:"ttl" json:"ttl"`
}

// Tenant is the read-only configuration of one application namespace.
//
// Invariants (enforced by Prepare):
//   - AppID and MasterKey are non-empty
//   - every IP allowlist entry parses as an address or CIDR
//   - every rate limit rule validates
//
// A prepared tenant is shared across concurrent requests and must not be
// mutated; the registry replaces it wholesale instead.
type Tenant struct {
	AppID             string   `koanf:"app_id" json:"app_id"`
	State             State    `koanf:"state" json:"state"`
	MasterKey         string   `koanf:"master_key" json:"-"`
	ReadOnlyMasterKey string   `koanf:"read_only_master_key" json:"-"`
	MaintenanceKey    string   `koanf:"maintenance_key" json:"-"`
	MasterKeyIPs      []string `koanf:"master_key_ips" json:"master_key_ips"`
	MaintenanceKeyIPs []string `koanf:"maintenance_key_ips" json:"maintenance_key_ips"`

	ClientKey     string `koanf:"client_key" json:"-"`
	JavaScriptKey string `koanf:"javascript_key" json:"-"`
	DotNetKey     string `koanf:"dotnet_key" json:"-"`
	RestAPIKey    string `koanf:"rest_api_key" json:"-"`

	RateLimits  []ratelimitmodels.Options `koanf:"rate_limits" json:"rate_limits,omitempty"`
	Idempotency *IdempotencyOptions       `koanf:"idempotency" json:"idempotency,omitempty"`

	AllowHeaders []string `koanf:"allow_headers" json:"allow_headers,omitempty"`
	AllowOrigin  []string `koanf:"allow_origin" json:"allow_origin,omitempty"`

	masterKeyPolicy      *ippolicy.Policy
	maintenanceKeyPolicy *ippolicy.Policy
}

// Prepare validates the configuration, applies defaults and builds the IP
// policies. It must be called before the tenant is published.
func (t *Tenant) Prepare() error {
	if strings.TrimSpace(t.AppID) == "" {
		return dErrors.New(dErrors.CodeValidation, "tenant app_id is required")
	}
	if t.MasterKey == "" {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("tenant %s: master_key is required", t.AppID))
	}
	if t.State == "" {
		t.State = StateOK
	}
	if t.MasterKeyIPs == nil {
		t.MasterKeyIPs = append([]string(nil), DefaultKeyIPs...)
	}
	if t.MaintenanceKeyIPs == nil {
		t.MaintenanceKeyIPs = append([]string(nil), DefaultKeyIPs...)
	}

	t.masterKeyPolicy = ippolicy.New(t.MasterKeyIPs)
	if bad := t.masterKeyPolicy.Invalid(); len(bad) > 0 {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("tenant %s: invalid master_key_ips %v", t.AppID, bad))
	}
	t.maintenanceKeyPolicy = ippolicy.New(t.MaintenanceKeyIPs)
	if bad := t.maintenanceKeyPolicy.Invalid(); len(bad) > 0 {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("tenant %s: invalid maintenance_key_ips %v", t.AppID, bad))
	}

	for i := range t.RateLimits {
		if err := t.RateLimits[i].Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("tenant %s: rate_limits[%d]", t.AppID, i))
		}
	}

	t.AllowHeaders = platformstrings.Normalize(t.AllowHeaders, platformstrings.Trim)
	t.AllowOrigin = platformstrings.Normalize(t.AllowOrigin, platformstrings.Trim)

	if t.Idempotency != nil && t.Idempotency.TTL <= 0 {
		t.Idempotency.TTL = DefaultIdempotencyTTL
	}
	return nil
}

// IsReady reports whether the tenant may serve requests.
func (t *Tenant) IsReady() bool {
	return t.State == StateOK
}

// MasterKeyPolicy returns the allowlist guarding the master key.
func (t *Tenant) MasterKeyPolicy() *ippolicy.Policy {
	return t.masterKeyPolicy
}

// MaintenanceKeyPolicy returns the allowlist guarding the maintenance key.
func (t *Tenant) MaintenanceKeyPolicy() *ippolicy.Policy {
	return t.maintenanceKeyPolicy
}

// MatchesMasterKey reports whether key is exactly the tenant's master key.
func (t *Tenant) MatchesMasterKey(key string) bool {
	return keyEqual(key, t.MasterKey)
}

// MatchesReadOnlyMasterKey reports whether key is exactly the read-only master key.
func (t *Tenant) MatchesReadOnlyMasterKey(key string) bool {
	return keyEqual(key, t.ReadOnlyMasterKey)
}

// MatchesMaintenanceKey reports whether key is exactly the maintenance key.
func (t *Tenant) MatchesMaintenanceKey(key string) bool {
	return keyEqual(key, t.MaintenanceKey)
}

// ClientKeys returns the client key kinds configured on the tenant, keyed by
// kind name.
func (t *Tenant) ClientKeys() map[string]string {
	keys := make(map[string]string, 4)
	for kind, v := range map[string]string{
		ClientKeyKindClient:     t.ClientKey,
		ClientKeyKindJavaScript: t.JavaScriptKey,
		ClientKeyKindDotNet:     t.DotNetKey,
		ClientKeyKindRestAPI:    t.RestAPIKey,
	} {
		if v != "" {
			keys[kind] = v
		}
	}
	return keys
}

// Client key kinds.
const (
	ClientKeyKindClient     = "clientKey"
	ClientKeyKindJavaScript = "javascriptKey"
	ClientKeyKindDotNet     = "dotNetKey"
	ClientKeyKindRestAPI    = "restAPIKey"
)

// KeyEqual compares a supplied key with a configured one in constant time.
// An empty configured key never matches.
func KeyEqual(supplied, configured string) bool {
	return keyEqual(supplied, configured)
}

func keyEqual(supplied, configured string) bool {
	if configured == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(configured)) == 1
}
