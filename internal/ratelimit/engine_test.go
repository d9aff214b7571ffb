package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	authmodels "tollgate/internal/auth/models"
	"tollgate/internal/ratelimit/models"
	"tollgate/internal/ratelimit/store/counter"
	dErrors "tollgate/pkg/domain-errors"
	audit "tollgate/pkg/platform/audit"
	auditmocks "tollgate/pkg/platform/audit/mocks"
)

const appID = "app"

type EngineSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	auditor *auditmocks.MockSecurityAuditor
	engine  *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.auditor = auditmocks.NewMockSecurityAuditor(s.ctrl)
	s.engine = New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditor(s.auditor),
	)
}

func (s *EngineSuite) addRule(opts models.Options) {
	s.Require().NoError(s.engine.AddRule(appID, opts))
}

func (s *EngineSuite) expectRejections(n int) {
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Times(n)
}

func anonymous(path, ip string) Request {
	return Request{
		AppID:    appID,
		Path:     path,
		Method:   "GET",
		ClientIP: ip,
		Auth:     &authmodels.AuthContext{Tier: authmodels.TierAnonymous},
	}
}

func (s *EngineSuite) TestAdmitsUntilLimitThenRejects() {
	ctx := context.Background()
	s.addRule(models.Options{
		RequestPath:          "/functions/*",
		RequestTimeWindow:    time.Minute,
		RequestCount:         2,
		ErrorResponseMessage: "slow down",
	})
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e audit.SecurityEvent) bool {
		return e.Action == audit.ActionRateLimitExceeded && e.IP == "10.0.0.1" && e.Path == "/functions/run"
	})).Times(1)

	req := anonymous("/functions/run", "10.0.0.1")
	s.NoError(s.engine.Admit(ctx, req))
	s.NoError(s.engine.Admit(ctx, req))

	err := s.engine.Admit(ctx, req)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	de, _ := dErrors.As(err)
	s.Equal("slow down", de.Message)

	s.Run("other IPs keep their own budget", func() {
		s.NoError(s.engine.Admit(ctx, anonymous("/functions/run", "10.0.0.2")))
	})

	s.Run("unmatched paths are not counted", func() {
		s.NoError(s.engine.Admit(ctx, anonymous("/classes/Item", "10.0.0.1")))
	})
}

func (s *EngineSuite) TestNoRulesAdmits() {
	s.NoError(s.engine.Admit(context.Background(), anonymous("/anything", "10.0.0.1")))
}

func (s *EngineSuite) TestFirstOverLimitRuleWins() {
	ctx := context.Background()
	s.addRule(models.Options{RequestPath: "/a/*", RequestTimeWindow: time.Minute, RequestCount: 1, ErrorResponseMessage: "first"})
	s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1, ErrorResponseMessage: "second"})
	s.expectRejections(1)

	req := anonymous("/a/b", "10.0.0.1")
	s.NoError(s.engine.Admit(ctx, req))
	err := s.engine.Admit(ctx, req)
	de, ok := dErrors.As(err)
	s.Require().True(ok)
	s.Equal("first", de.Message)
}

func (s *EngineSuite) TestSkips() {
	ctx := context.Background()
	master := &authmodels.AuthContext{Tier: authmodels.TierMaster}

	s.Run("loopback callers skip unless internal requests are included", func() {
		s.SetupTest()
		s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1})
		req := anonymous("/x", "127.0.0.1")
		for range 3 {
			s.NoError(s.engine.Admit(ctx, req))
		}
	})

	s.Run("internal requests are counted when included", func() {
		s.SetupTest()
		s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1, IncludeInternalRequests: true})
		s.expectRejections(1)
		req := anonymous("/x", "::1")
		s.NoError(s.engine.Admit(ctx, req))
		s.Error(s.engine.Admit(ctx, req))
	})

	s.Run("master key callers skip by default", func() {
		s.SetupTest()
		s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1})
		req := anonymous("/x", "10.0.0.1")
		req.Auth = master
		for range 3 {
			s.NoError(s.engine.Admit(ctx, req))
		}
	})

	s.Run("master key callers are counted on every method when included", func() {
		s.SetupTest()
		s.addRule(models.Options{
			RequestPath:       "*",
			RequestTimeWindow: time.Minute,
			RequestCount:      1,
			RequestMethods:    []string{"POST"},
			IncludeMasterKey:  true,
		})
		s.expectRejections(1)
		req := anonymous("/x", "10.0.0.1")
		req.Auth = master
		s.NoError(s.engine.Admit(ctx, req))
		s.Error(s.engine.Admit(ctx, req))
	})

	s.Run("method filters skip other methods", func() {
		s.SetupTest()
		s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1, RequestMethods: []string{"post"}})
		s.expectRejections(1)
		get := anonymous("/x", "10.0.0.1")
		for range 3 {
			s.NoError(s.engine.Admit(ctx, get))
		}
		post := get
		post.Method = "POST"
		s.NoError(s.engine.Admit(ctx, post))
		s.Error(s.engine.Admit(ctx, post))
	})

	s.Run("method patterns", func() {
		s.SetupTest()
		s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1, RequestMethodPattern: "^(PUT|DELETE)$"})
		s.expectRejections(1)
		req := anonymous("/x", "10.0.0.1")
		req.Method = "DELETE"
		s.NoError(s.engine.Admit(ctx, req))
		s.Error(s.engine.Admit(ctx, req))
		req.Method = "GET"
		s.NoError(s.engine.Admit(ctx, req))
	})
}

func (s *EngineSuite) TestZones() {
	ctx := context.Background()

	s.Run("global zone shares one counter across callers", func() {
		s.SetupTest()
		s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1, Zone: models.ZoneGlobal})
		s.expectRejections(1)
		s.NoError(s.engine.Admit(ctx, anonymous("/x", "10.0.0.1")))
		s.Error(s.engine.Admit(ctx, anonymous("/x", "10.0.0.2")))
	})

	s.Run("session zone keys on the token and falls back to IP", func() {
		s.SetupTest()
		s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1, Zone: models.ZoneSession})
		s.expectRejections(2)

		a := anonymous("/x", "10.0.0.1")
		a.SessionToken = "r:a"
		b := a
		b.SessionToken = "r:b"
		s.NoError(s.engine.Admit(ctx, a))
		s.NoError(s.engine.Admit(ctx, b))
		s.Error(s.engine.Admit(ctx, a))

		noToken := anonymous("/x", "10.0.0.9")
		s.NoError(s.engine.Admit(ctx, noToken))
		s.Error(s.engine.Admit(ctx, noToken))
	})

	s.Run("user zone keys on the resolved user across IPs", func() {
		s.SetupTest()
		s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1, Zone: models.ZoneUser})
		s.expectRejections(1)

		user := &authmodels.AuthContext{Tier: authmodels.TierUser, User: &authmodels.User{ID: "u1"}}
		first := anonymous("/x", "10.0.0.1")
		first.Auth = user
		second := anonymous("/x", "10.0.0.2")
		second.Auth = user
		s.NoError(s.engine.Admit(ctx, first))
		s.Error(s.engine.Admit(ctx, second))
	})

	s.Run("user zone forces the deferred session lookup", func() {
		s.SetupTest()
		s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 5, Zone: models.ZoneUser})
		s.addRule(models.Options{RequestPath: "/x", RequestTimeWindow: time.Minute, RequestCount: 5, Zone: models.ZoneUser})

		pending := &countingResolver{auth: &authmodels.AuthContext{Tier: authmodels.TierUser, User: &authmodels.User{ID: "u1"}}}
		req := Request{AppID: appID, Path: "/x", Method: "GET", ClientIP: "10.0.0.1", SessionToken: "r:tok", Pending: pending}
		s.NoError(s.engine.Admit(ctx, req))
		s.Positive(pending.calls.Load())
	})

	s.Run("user zone falls back to IP when the lookup fails", func() {
		s.SetupTest()
		s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1, Zone: models.ZoneUser})
		s.expectRejections(1)

		pending := &countingResolver{err: dErrors.New(dErrors.CodeInvalidSessionToken, "Invalid session token")}
		req := Request{AppID: appID, Path: "/x", Method: "GET", ClientIP: "10.0.0.1", SessionToken: "r:bad", Pending: pending}
		s.NoError(s.engine.Admit(ctx, req))
		s.Error(s.engine.Admit(ctx, anonymous("/x", "10.0.0.1")))
	})
}

func (s *EngineSuite) TestStoreFailureAdmits() {
	engine := New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRedisFactory(func(string) (CounterStore, error) { return failingStore{}, nil }),
	)
	s.Require().NoError(engine.AddRule(appID, models.Options{
		RequestPath:       "*",
		RequestTimeWindow: time.Minute,
		RequestCount:      1,
		RedisURL:          "redis://unreachable:6379",
	}))
	req := anonymous("/x", "10.0.0.1")
	for range 3 {
		s.NoError(engine.Admit(context.Background(), req))
	}
}

func (s *EngineSuite) TestDistributedStoreSharedPerURL() {
	mr := miniredis.RunT(s.T())
	var built atomic.Int32
	engine := New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditor(audit.NopAuditor{}),
		WithRedisFactory(func(string) (CounterStore, error) {
			built.Add(1)
			return counter.NewDistributed(redis.NewClient(&redis.Options{Addr: mr.Addr()})), nil
		}),
	)
	url := "redis://" + mr.Addr()
	s.Require().NoError(engine.LoadTenant(appID, []models.Options{
		{RequestPath: "/a", RequestTimeWindow: time.Minute, RequestCount: 1, RedisURL: url},
		{RequestPath: "/b", RequestTimeWindow: time.Minute, RequestCount: 1, RedisURL: url},
	}))
	s.Equal(int32(1), built.Load())

	ctx := context.Background()
	s.NoError(engine.Admit(ctx, anonymous("/a", "10.0.0.1")))
	s.Error(engine.Admit(ctx, anonymous("/a", "10.0.0.1")))
	s.NoError(engine.Admit(ctx, anonymous("/b", "10.0.0.1")))
	s.NoError(engine.Close())
}

func (s *EngineSuite) TestReloadKeysCountersByRuleContent() {
	mr := miniredis.RunT(s.T())
	engine := New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditor(audit.NopAuditor{}),
		WithRedisFactory(func(string) (CounterStore, error) {
			return counter.NewDistributed(redis.NewClient(&redis.Options{Addr: mr.Addr()})), nil
		}),
	)
	s.T().Cleanup(func() { _ = engine.Close() })
	url := "redis://" + mr.Addr()
	strict := models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1, RedisURL: url}
	loose := models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 3, RedisURL: url}

	ctx := context.Background()
	req := anonymous("/x", "10.0.0.1")
	s.Require().NoError(engine.LoadTenant(appID, []models.Options{strict}))
	s.NoError(engine.Admit(ctx, req))
	s.Error(engine.Admit(ctx, req))

	s.Run("a different rule in the same slot starts fresh", func() {
		s.Require().NoError(engine.LoadTenant(appID, []models.Options{loose}))
		for range 3 {
			s.NoError(engine.Admit(ctx, req))
		}
		s.Error(engine.Admit(ctx, req))
	})

	s.Run("reloading an unchanged rule keeps its counter", func() {
		s.Require().NoError(engine.LoadTenant(appID, []models.Options{loose}))
		s.Error(engine.Admit(ctx, req))
	})

	s.Run("identical rules count separately", func() {
		s.Require().NoError(engine.LoadTenant("twin", []models.Options{strict, strict}))
		rules := engine.Rules("twin")
		s.Require().Len(rules, 2)
		s.NotEqual(rules[0].ID, rules[1].ID)

		twin := anonymous("/x", "10.0.0.1")
		twin.AppID = "twin"
		s.NoError(engine.Admit(ctx, twin))
		s.Error(engine.Admit(ctx, twin))
	})
}

func (s *EngineSuite) TestRuleManagement() {
	s.Run("invalid options are rejected", func() {
		err := s.engine.AddRule(appID, models.Options{RequestPath: "", RequestTimeWindow: time.Minute, RequestCount: 1})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Empty(s.engine.Rules(appID))
	})

	s.Run("LoadTenant replaces rules atomically", func() {
		s.addRule(models.Options{RequestPath: "/old", RequestTimeWindow: time.Minute, RequestCount: 1})
		err := s.engine.LoadTenant(appID, []models.Options{
			{RequestPath: "/new", RequestTimeWindow: time.Minute, RequestCount: 1},
			{RequestPath: "/bad", RequestTimeWindow: 0, RequestCount: 1},
		})
		s.Error(err)
		s.Require().Len(s.engine.Rules(appID), 1)
		s.Equal("/old", s.engine.Rules(appID)[0].Path)

		s.Require().NoError(s.engine.LoadTenant(appID, []models.Options{
			{RequestPath: "/new", RequestTimeWindow: time.Minute, RequestCount: 1},
		}))
		s.Equal("/new", s.engine.Rules(appID)[0].Path)
	})

	s.Run("RemoveTenant drops its rules", func() {
		s.engine.RemoveTenant(appID)
		s.Empty(s.engine.Rules(appID))
	})
}

func (s *EngineSuite) TestReset() {
	ctx := context.Background()
	s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 1})
	s.expectRejections(1)

	req := anonymous("/x", "10.0.0.1")
	s.NoError(s.engine.Admit(ctx, req))
	s.Error(s.engine.Admit(ctx, req))

	s.Require().NoError(s.engine.Reset(ctx, appID, models.ZoneIP, "10.0.0.1"))
	s.NoError(s.engine.Admit(ctx, req))
}

func (s *EngineSuite) TestConcurrentAdmitsHonourLimit() {
	s.addRule(models.Options{RequestPath: "*", RequestTimeWindow: time.Minute, RequestCount: 10, Zone: models.ZoneGlobal})
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).AnyTimes()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.engine.Admit(context.Background(), anonymous("/x", "10.0.0.1")) == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(10), admitted.Load())
}

type countingResolver struct {
	calls atomic.Int32
	auth  *authmodels.AuthContext
	err   error
}

func (r *countingResolver) Resolve(context.Context) (*authmodels.AuthContext, error) {
	r.calls.Add(1)
	return r.auth, r.err
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (models.Count, error) {
	return models.Count{}, errors.New("connection refused")
}

func (failingStore) Reset(context.Context, string) error { return nil }
