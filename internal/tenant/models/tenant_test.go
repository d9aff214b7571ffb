package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ratelimitmodels "tollgate/internal/ratelimit/models"
	dErrors "tollgate/pkg/domain-errors"
)

func TestPrepare(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		tn := &Tenant{AppID: "app", MasterKey: "mk", Idempotency: &IdempotencyOptions{Paths: []string{".*"}}}
		require.NoError(t, tn.Prepare())

		assert.Equal(t, StateOK, tn.State)
		assert.Equal(t, DefaultKeyIPs, tn.MasterKeyIPs)
		assert.Equal(t, DefaultKeyIPs, tn.MaintenanceKeyIPs)
		assert.Equal(t, DefaultIdempotencyTTL, tn.Idempotency.TTL)
		assert.True(t, tn.MasterKeyPolicy().Allowed("127.0.0.1"))
		assert.False(t, tn.MasterKeyPolicy().Allowed("10.0.0.1"))
	})

	t.Run("explicit empty allowlist denies everyone", func(t *testing.T) {
		tn := &Tenant{AppID: "app", MasterKey: "mk", MasterKeyIPs: []string{}}
		require.NoError(t, tn.Prepare())
		assert.False(t, tn.MasterKeyPolicy().Allowed("127.0.0.1"))
	})

	failures := map[string]*Tenant{
		"missing app id":     {MasterKey: "mk"},
		"missing master key": {AppID: "app"},
		"bad ip":             {AppID: "app", MasterKey: "mk", MasterKeyIPs: []string{"10.0.0.0/40"}},
		"bad rule":           {AppID: "app", MasterKey: "mk", RateLimits: []ratelimitmodels.Options{{RequestPath: "*"}}},
	}
	for name, tn := range failures {
		t.Run(name, func(t *testing.T) {
			err := tn.Prepare()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}

	t.Run("rule defaults are filled in place", func(t *testing.T) {
		tn := &Tenant{AppID: "app", MasterKey: "mk", RateLimits: []ratelimitmodels.Options{{RequestPath: "*", RequestTimeWindow: time.Second, RequestCount: 3}}}
		require.NoError(t, tn.Prepare())
		assert.Equal(t, ratelimitmodels.ZoneIP, tn.RateLimits[0].Zone)
	})

	t.Run("cors lists are trimmed and deduplicated", func(t *testing.T) {
		tn := &Tenant{
			AppID:        "app",
			MasterKey:    "mk",
			AllowHeaders: []string{" X-Custom", "X-Custom ", ""},
			AllowOrigin:  []string{"https://a.example", " https://a.example"},
		}
		require.NoError(t, tn.Prepare())
		assert.Equal(t, []string{"X-Custom"}, tn.AllowHeaders)
		assert.Equal(t, []string{"https://a.example"}, tn.AllowOrigin)
	})
}

func TestKeyMatching(t *testing.T) {
	tn := &Tenant{AppID: "app", MasterKey: "master", ReadOnlyMasterKey: "ro"}

	assert.True(t, tn.MatchesMasterKey("master"))
	assert.False(t, tn.MatchesMasterKey("maste"))
	assert.False(t, tn.MatchesMasterKey("master2"))
	assert.False(t, tn.MatchesMasterKey(""))
	assert.True(t, tn.MatchesReadOnlyMasterKey("ro"))
	assert.False(t, tn.MatchesMaintenanceKey(""), "unconfigured key never matches")
}

func TestClientKeys(t *testing.T) {
	assert.Empty(t, (&Tenant{}).ClientKeys())
	assert.Equal(t, map[string]string{ClientKeyKindClient: "abc"}, (&Tenant{ClientKey: "abc"}).ClientKeys())
}
