// Package config loads process configuration from defaults, an optional YAML
// file and TOLLGATE_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables read by Load. Nested keys use a
// double underscore: TOLLGATE_SERVER__ADDR sets server.addr.
const EnvPrefix = "TOLLGATE_"

// Store kinds for sessions and idempotency records.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Server      Server      `koanf:"server"`
	Log         Log         `koanf:"log"`
	Redis       Redis       `koanf:"redis"`
	Postgres    Postgres    `koanf:"postgres"`
	Kafka       Kafka       `koanf:"kafka"`
	JWT         JWT         `koanf:"jwt"`
	Sessions    Sessions    `koanf:"sessions"`
	Idempotency Idempotency `koanf:"idempotency"`
	// TenantsFile is a YAML document with a top-level "tenants" list.
	TenantsFile string `koanf:"tenants_file"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `koanf:"addr"`
	MountPath         string        `koanf:"mount_path"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	BodyLimit         int64         `koanf:"body_limit"`
	// TrustedProxies lists peers allowed to set X-Forwarded-For and
	// X-Real-IP. Empty means the direct peer is always the client.
	TrustedProxies []string `koanf:"trusted_proxies"`
	// AdminToken guards the operator endpoints; empty disables them.
	AdminToken string `koanf:"admin_token"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Redis holds Redis connection settings. An empty URL disables Redis.
type Redis struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// Postgres holds database settings. An empty DSN disables Postgres.
type Postgres struct {
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// Kafka configures the security audit sink. No brokers means audit events
// are written to the log only.
type Kafka struct {
	Brokers           []string `koanf:"brokers"`
	AuditTopic        string   `koanf:"audit_topic"`
	Partitions        int32    `koanf:"partitions"`
	ReplicationFactor int16    `koanf:"replication_factor"`
}

// JWT configures verification of bearer identity tokens. An empty signing
// key disables bearer verification.
type JWT struct {
	SigningKey string `koanf:"signing_key"`
	Issuer     string `koanf:"issuer"`
	Audience   string `koanf:"audience"`
}

type Sessions struct {
	Store string `koanf:"store"`
}

type Idempotency struct {
	Store           string        `koanf:"store"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

var defaults = map[string]any{
	"server.addr":                ":8080",
	"server.mount_path":          "/api",
	"server.read_header_timeout": "5s",
	"server.read_timeout":        "30s",
	"server.write_timeout":       "30s",
	"server.idle_timeout":        "120s",
	"server.shutdown_timeout":    "10s",
	"server.body_limit":          20 << 20,

	"log.level":  "info",
	"log.format": "json",

	"redis.pool_size":      10,
	"redis.min_idle_conns": 2,
	"redis.dial_timeout":   "5s",
	"redis.read_timeout":   "3s",
	"redis.write_timeout":  "3s",

	"postgres.max_open_conns":    20,
	"postgres.max_idle_conns":    5,
	"postgres.conn_max_lifetime": "30m",

	"kafka.audit_topic":        "tollgate.security-audit",
	"kafka.partitions":         3,
	"kafka.replication_factor": 1,

	"jwt.issuer":   "tollgate",
	"jwt.audience": "tollgate",

	"sessions.store": StoreMemory,

	"idempotency.store":            StoreMemory,
	"idempotency.cleanup_interval": "1m",

	"tenants_file": "tenants.yaml",
}

// Load builds the configuration. A missing file at path is ignored; an
// empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.MountPath == "" || c.Server.MountPath[0] != '/' {
		return fmt.Errorf("server.mount_path must start with /")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if err := c.checkStore("sessions.store", c.Sessions.Store); err != nil {
		return err
	}
	return c.checkStore("idempotency.store", c.Idempotency.Store)
}

func (c *Config) checkStore(key, kind string) error {
	switch kind {
	case StoreMemory:
		return nil
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("%s is redis but redis.url is empty", key)
		}
		return nil
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("%s is postgres but postgres.dsn is empty", key)
		}
		return nil
	}
	return fmt.Errorf("%s must be one of memory, redis, postgres, got %q", key, kind)
}
