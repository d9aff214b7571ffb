package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	ratelimitmodels "tollgate/internal/ratelimit/models"
	"tollgate/internal/tenant/metrics"
	"tollgate/internal/tenant/models"
)

type RegistrySuite struct {
	suite.Suite
	ctx      context.Context
	metrics  *metrics.Metrics
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.registry = New(WithMetrics(s.metrics))
}

func (s *RegistrySuite) TestRegisterAndLookup() {
	s.Require().NoError(s.registry.Register(s.ctx, &models.Tenant{AppID: "app", MasterKey: "mk"}))

	tenant, ok := s.registry.Lookup("app")
	s.Require().True(ok)
	s.Equal("mk", tenant.MasterKey)
	s.NotNil(tenant.MasterKeyPolicy())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Registered))

	_, ok = s.registry.Lookup("missing")
	s.False(ok)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.LookupMiss))
}

func (s *RegistrySuite) TestRegisterRejectsInvalidTenant() {
	s.Error(s.registry.Register(s.ctx, &models.Tenant{AppID: "app"}))
	_, ok := s.registry.Lookup("app")
	s.False(ok)
}

func (s *RegistrySuite) TestReplaceKeepsOldSnapshotIntact() {
	s.Require().NoError(s.registry.Register(s.ctx, &models.Tenant{AppID: "app", MasterKey: "v1"}))
	old, _ := s.registry.Lookup("app")

	s.Require().NoError(s.registry.Register(s.ctx, &models.Tenant{AppID: "app", MasterKey: "v2"}))
	current, _ := s.registry.Lookup("app")

	s.Equal("v1", old.MasterKey)
	s.Equal("v2", current.MasterKey)
}

func (s *RegistrySuite) TestRemove() {
	s.Require().NoError(s.registry.Register(s.ctx, &models.Tenant{AppID: "b", MasterKey: "mk"}))
	s.Require().NoError(s.registry.Register(s.ctx, &models.Tenant{AppID: "a", MasterKey: "mk"}))
	s.Equal([]string{"a", "b"}, s.registry.AppIDs())

	s.registry.Remove(s.ctx, "a")
	s.Equal([]string{"b"}, s.registry.AppIDs())
}

func (s *RegistrySuite) TestConcurrentLookupsDuringRegistration() {
	s.Require().NoError(s.registry.Register(s.ctx, &models.Tenant{AppID: "app", MasterKey: "mk"}))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_, ok := s.registry.Lookup("app")
				s.True(ok)
			}
		}()
	}
	for i := range 20 {
		s.Require().NoError(s.registry.Register(s.ctx, &models.Tenant{AppID: "other", MasterKey: string(rune('a' + i))}))
	}
	wg.Wait()
}

const tenantsYAML = `
tenants:
  - app_id: app
    master_key: mk
    read_only_master_key: ro
    master_key_ips: ["10.0.0.0/8"]
    client_key: abc
    rate_limits:
      - request_path: /functions/*
        request_time_window: 1m
        request_count: 10
        zone: user
        request_methods: [POST]
    idempotency:
      paths: ["functions/.*"]
      ttl: 120s
  - app_id: other
    master_key: mk2
    state: initialized
`

func (s *RegistrySuite) TestLoadBytes() {
	tenants, err := LoadBytes([]byte(tenantsYAML))
	s.Require().NoError(err)
	s.Require().Len(tenants, 2)

	app := tenants[0]
	s.Equal("app", app.AppID)
	s.Equal("ro", app.ReadOnlyMasterKey)
	s.Equal([]string{"10.0.0.0/8"}, app.MasterKeyIPs)
	s.Require().Len(app.RateLimits, 1)
	s.Equal(time.Minute, app.RateLimits[0].RequestTimeWindow)
	s.Equal(ratelimitmodels.ZoneUser, app.RateLimits[0].Zone)
	s.Equal([]string{"POST"}, app.RateLimits[0].RequestMethods)
	s.Equal(120*time.Second, app.Idempotency.TTL)
	s.Equal(models.StateInitialized, tenants[1].State)
}

func (s *RegistrySuite) TestLoadBytesRejectsMalformedYAML() {
	_, err := LoadBytes([]byte("tenants: [app_id: {"))
	s.Require().Error(err)
	s.Contains(err.Error(), "parse tenants")
}

func (s *RegistrySuite) TestLoadRejectsUnknownKeys() {
	_, err := LoadBytes([]byte(`
tenants:
  - app_id: app
    master_key: mk
    rate_limits:
      - request_path: "*"
        request_time_window: 1s
        request_count: 1
        request_cuont: 2
`))
	s.Error(err)
}

func (s *RegistrySuite) TestLoadFile() {
	path := filepath.Join(s.T().TempDir(), "tenants.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(tenantsYAML), 0o600))

	tenants, err := LoadFile(path)
	s.Require().NoError(err)
	s.Len(tenants, 2)

	_, err = LoadFile(filepath.Join(s.T().TempDir(), "missing.yaml"))
	s.Error(err)
}
