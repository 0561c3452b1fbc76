package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	strs "sovren/pkg/platform/strings"
)

// Config is built once in main and passed down; nothing below main reads the
// environment.
type Config struct {
	Server   Server
	Log      Log
	Database DatabaseConfig
	Redis    RedisConfig
	Mongo    MongoConfig
	Token    TokenConfig
	Admin    AdminConfig
	Status   StatusConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"SOVREN_ADDR"      envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// DatabaseConfig sizes the pool like the original deployment: 10 pooled plus
// 20 overflow connections.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"          envDefault:"postgres://sovren:securepass@db:5432/sovren_ai?sslmode=disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS"     envDefault:"30"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS"     envDefault:"10"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"30s"`
	// Store selects the mapping store implementation: "postgres" or "memory".
	Store string `env:"MAPPING_STORE" envDefault:"postgres"`
}

// RedisConfig configures the optional Redis connection. An empty URL disables it.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT"   envDefault:"2s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT"   envDefault:"1s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT"  envDefault:"1s"`
	// MappingCacheTTL > 0 enables the read-through mapping cache.
	MappingCacheTTL time.Duration `env:"MAPPING_CACHE_TTL" envDefault:"0s"`
}

// MongoConfig points at the document store; it is only pinged by /status.
type MongoConfig struct {
	URL string `env:"MONGO_URL"`
}

type TokenConfig struct {
	Secret     string `env:"JWT_SECRET"`
	Algorithm  string `env:"JWT_ALG"         envDefault:"HS256"`
	ExpMinutes int    `env:"JWT_EXP_MINUTES" envDefault:"5"`
	Issuer     string `env:"JWT_ISSUER"`
}

// TTL is the lifetime of an issued assertion.
func (c TokenConfig) TTL() time.Duration {
	return time.Duration(c.ExpMinutes) * time.Minute
}

// AdminConfig holds the shared admin secret. Empty disables admin routes.
type AdminConfig struct {
	Token string `env:"ADMIN_TOKEN"`
}

// Enabled reports whether admin routes accept any request at all.
func (c AdminConfig) Enabled() bool {
	return c.Token != ""
}

type StatusConfig struct {
	// HTTPProbes maps dependency name to a URL that must answer 2xx.
	HTTPProbes   map[string]string `env:"STATUS_HTTP_PROBES"   envSeparator:"," envKeyValSeparator:"="`
	ProbeTimeout time.Duration     `env:"STATUS_PROBE_TIMEOUT" envDefault:"2s"`
}

type KafkaConfig struct {
	Brokers      []string `env:"KAFKA_BROKERS"       envSeparator:","`
	MappingTopic string   `env:"KAFKA_MAPPING_TOPIC" envDefault:"sovren.mapping.changes"`
}

// Enabled reports whether mapping change events go to Kafka.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type TracingConfig struct {
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"sovren-backend"`
}

// ErrMissingSigningSecret is returned when JWT_SECRET is unset. The process
// must not serve traffic without it.
var ErrMissingSigningSecret = errors.New("JWT_SECRET environment variable must be set")

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kafka.Brokers = strs.DedupeAndTrim(cfg.Kafka.Brokers)
	cfg.Status.HTTPProbes = strs.TrimPairs(cfg.Status.HTTPProbes)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the settings the service cannot run without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Token.Secret) == "" {
		return ErrMissingSigningSecret
	}
	if c.Token.ExpMinutes <= 0 {
		return fmt.Errorf("JWT_EXP_MINUTES must be positive, got %d", c.Token.ExpMinutes)
	}
	switch c.Database.Store {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL must be set when MAPPING_STORE=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown MAPPING_STORE %q", c.Database.Store)
	}
	if c.Redis.MappingCacheTTL > 0 && c.Redis.URL == "" {
		return errors.New("MAPPING_CACHE_TTL requires REDIS_URL")
	}
	return nil
}

// LoadDatabase parses only the database settings, for tools that never serve
// traffic and so have no signing secret.
func LoadDatabase() (DatabaseConfig, error) {
	var cfg DatabaseConfig
	if err := env.Parse(&cfg); err != nil {
		return DatabaseConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.URL == "" {
		return DatabaseConfig{}, errors.New("DATABASE_URL must be set")
	}
	return cfg, nil
}
