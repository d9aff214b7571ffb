package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"tollgate/internal/admission"
	admmetrics "tollgate/internal/admission/metrics"
	"tollgate/internal/auth"
	authmetrics "tollgate/internal/auth/metrics"
	"tollgate/internal/auth/store/session"
	"tollgate/internal/idempotency"
	idmetrics "tollgate/internal/idempotency/metrics"
	idstore "tollgate/internal/idempotency/store"
	jwttoken "tollgate/internal/jwt_token"
	"tollgate/internal/platform/config"
	"tollgate/internal/platform/httpserver"
	"tollgate/internal/platform/kafka"
	"tollgate/internal/platform/logger"
	"tollgate/internal/platform/metrics"
	"tollgate/internal/platform/postgres"
	"tollgate/internal/platform/redis"
	"tollgate/internal/ratelimit"
	rlmetrics "tollgate/internal/ratelimit/metrics"
	tenantmetrics "tollgate/internal/tenant/metrics"
	"tollgate/internal/tenant/registry"
	audit "tollgate/pkg/platform/audit"
	"tollgate/pkg/platform/audit/publisher"
	kafkasink "tollgate/pkg/platform/audit/sinks/kafka"
	authmw "tollgate/pkg/platform/middleware/auth"
	"tollgate/pkg/platform/middleware/metadata"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "tollgate.yaml", "path to the YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("tollgate exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	procMetrics := metrics.New(reg, version)
	checks := map[string]healthCheck{}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
		checks["redis"] = rc.Health
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db, session.Schema, idstore.Schema); err != nil {
			return err
		}
		checks["postgres"] = db.PingContext
	}

	kc, err := kafka.New(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	var sink audit.Sink = publisher.NewLogSink(log)
	if kc != nil {
		defer kc.Close()
		sink = kafkasink.New(kc, cfg.Kafka.AuditTopic)
	}
	auditor := publisher.New(sink,
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetricsWithRegisterer(reg)),
	)
	defer auditor.Close()

	sessions, err := newSessionStore(cfg.Sessions.Store, rc, db)
	if err != nil {
		return err
	}
	resolver, err := auth.New(sessions,
		auth.WithLogger(log),
		auth.WithAuditor(auditor),
		auth.WithMetrics(authmetrics.NewWithRegisterer(reg)),
	)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(
		ratelimit.WithLogger(log),
		ratelimit.WithAuditor(auditor),
		ratelimit.WithMetrics(rlmetrics.NewWithRegisterer(reg)),
	)
	defer limiter.Close()

	records, err := newIdempotencyStore(cfg.Idempotency.Store, rc, db)
	if err != nil {
		return err
	}
	guard := idempotency.New(records,
		idempotency.WithLogger(log),
		idempotency.WithAuditor(auditor),
		idempotency.WithMetrics(idmetrics.NewWithRegisterer(reg)),
	)

	tenants := registry.New(
		registry.WithLogger(log),
		registry.WithMetrics(tenantmetrics.NewWithRegisterer(reg)),
	)
	if err := loadTenants(ctx, cfg.TenantsFile, tenants, limiter); err != nil {
		return err
	}

	clientIPs, err := metadata.NewResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}

	pipeline := admission.New(tenants, resolver,
		admission.WithMountPath(cfg.Server.MountPath),
		admission.WithClientIPResolver(clientIPs),
		admission.WithBodyLimit(cfg.Server.BodyLimit),
		admission.WithRateLimiter(limiter),
		admission.WithIdempotencyGuard(guard),
		admission.WithLogger(log),
		admission.WithMetrics(admmetrics.NewWithRegisterer(reg)),
	)

	var validator authmw.JWTValidator
	if cfg.JWT.SigningKey != "" {
		validator = jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience))
	}

	srv := httpserver.New(cfg.Server, newRouter(routerDeps{
		pipeline:   pipeline,
		clientIPs:  clientIPs,
		limits:     limiter,
		validator:  validator,
		registry:   reg,
		adminToken: cfg.Server.AdminToken,
		checks:     checks,
		logger:     log,
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting tollgate", "addr", cfg.Server.Addr, "mount_path", cfg.Server.MountPath, "version", version)
		procMetrics.SetReady(true)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		runCleanup(gctx, records, cfg.Idempotency.CleanupInterval, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		procMetrics.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

type cleaner interface {
	StartCleanup(ctx context.Context, interval time.Duration) error
}

// runCleanup keeps the expired-record sweep alive until ctx is done. Redis
// records expire on their own.
func runCleanup(ctx context.Context, store idempotency.Store, interval time.Duration, log *slog.Logger) {
	c, ok := store.(cleaner)
	if !ok || interval <= 0 {
		return
	}
	for {
		err := c.StartCleanup(ctx, interval)
		if ctx.Err() != nil {
			return
		}
		log.Warn("idempotency cleanup failed, retrying", "error", err)
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}
	}
}
