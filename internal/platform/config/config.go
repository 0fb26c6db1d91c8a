// Package config loads runtime configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/circuit"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the whole runtime configuration.
type Config struct {
	Server     Server      `envPrefix:"SERVER_"`
	Log        Log         `envPrefix:"LOG_"`
	Storage    Storage     `envPrefix:"STORAGE_"`
	Postgres   Postgres    `envPrefix:"POSTGRES_"`
	Redis      RedisConfig `envPrefix:"REDIS_"`
	Kafka      Kafka       `envPrefix:"KAFKA_"`
	Dispatcher Dispatcher  `envPrefix:"DISPATCHER_"`
	Relay      Relay       `envPrefix:"RELAY_"`
	Breaker    Breaker     `envPrefix:"BREAKER_"`
	Admin      Admin       `envPrefix:"ADMIN_"`
	Modules    Modules     `envPrefix:"MODULES_"`
	Projection Projection  `envPrefix:"PROJECTION_"`
	Tracing    Tracing     `envPrefix:"OTEL_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `env:"ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Storage picks the backing database for the outbox and module state.
type Storage struct {
	Driver     string `env:"DRIVER" envDefault:"postgres"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"rustokio.db"`
}

type Postgres struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig enables the shared idempotency store when URL is set.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka switches the relay to an external transport when Enabled.
type Kafka struct {
	Enabled           bool          `env:"ENABLED"`
	Brokers           []string      `env:"BROKERS" envSeparator:","`
	ClientID          string        `env:"CLIENT_ID" envDefault:"rustokio"`
	Stream            string        `env:"STREAM" envDefault:"rustokio"`
	GroupID           string        `env:"GROUP_ID" envDefault:"rustokio-runtime"`
	DomainPartitions  int32         `env:"DOMAIN_PARTITIONS" envDefault:"4"`
	SystemPartitions  int32         `env:"SYSTEM_PARTITIONS" envDefault:"1"`
	ReplicationFactor int16         `env:"REPLICATION_FACTOR" envDefault:"1"`
	ProduceTimeout    time.Duration `env:"PRODUCE_TIMEOUT" envDefault:"10s"`
	EnsureTopology    bool          `env:"ENSURE_TOPOLOGY" envDefault:"true"`
}

type Dispatcher struct {
	MaxConcurrent  int           `env:"MAX_CONCURRENT" envDefault:"10"`
	FailFast       bool          `env:"FAIL_FAST"`
	RetryCount     int           `env:"RETRY_COUNT" envDefault:"3"`
	RetryDelayMS   int           `env:"RETRY_DELAY_MS" envDefault:"100"`
	MaxQueueDepth  int           `env:"MAX_QUEUE_DEPTH" envDefault:"1000"`
	HandlerTimeout time.Duration `env:"HANDLER_TIMEOUT" envDefault:"30s"`
	Partitions     int           `env:"PARTITIONS" envDefault:"4"`
}

func (d Dispatcher) RetryDelay() time.Duration {
	return time.Duration(d.RetryDelayMS) * time.Millisecond
}

type Relay struct {
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"100"`
	MaxAttempts   int           `env:"MAX_ATTEMPTS" envDefault:"10"`
	BackoffBase   time.Duration `env:"BACKOFF_BASE" envDefault:"1s"`
	BackoffJitter time.Duration `env:"BACKOFF_JITTER" envDefault:"500ms"`
	BackoffMax    time.Duration `env:"BACKOFF_MAX" envDefault:"5m"`
	// Retention of Delivered rows; zero disables pruning.
	Retention     time.Duration `env:"RETENTION" envDefault:"168h"`
	PruneInterval time.Duration `env:"PRUNE_INTERVAL" envDefault:"1h"`
}

// Breaker holds the defaults for every named breaker plus per-name
// overrides in the form "name:fail/success/timeout,...".
type Breaker struct {
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"5"`
	SuccessThreshold int           `env:"SUCCESS_THRESHOLD" envDefault:"2"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"30s"`
	HalfOpenMaxCalls int           `env:"HALF_OPEN_MAX_CALLS" envDefault:"1"`
	Overrides        string        `env:"OVERRIDES"`
}

func (b Breaker) Defaults() circuit.Config {
	return circuit.Config{
		FailureThreshold: b.FailureThreshold,
		SuccessThreshold: b.SuccessThreshold,
		Timeout:          b.Timeout,
		HalfOpenMaxCalls: b.HalfOpenMaxCalls,
	}
}

// ParsedOverrides decodes Overrides. Breaker names may themselves contain
// colons; the last colon separates the name from the thresholds.
func (b Breaker) ParsedOverrides() (map[string]circuit.Config, error) {
	out := make(map[string]circuit.Config)
	for item := range strings.SplitSeq(b.Overrides, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		idx := strings.LastIndex(item, ":")
		if idx <= 0 {
			return nil, fmt.Errorf("breaker override %q: expected name:fail/success/timeout", item)
		}
		name, spec := item[:idx], item[idx+1:]
		parts := strings.Split(spec, "/")
		if len(parts) != 3 {
			return nil, fmt.Errorf("breaker override %q: expected fail/success/timeout", item)
		}
		fail, err := strconv.Atoi(parts[0])
		if err != nil || fail <= 0 {
			return nil, fmt.Errorf("breaker override %q: invalid failure threshold", item)
		}
		success, err := strconv.Atoi(parts[1])
		if err != nil || success <= 0 {
			return nil, fmt.Errorf("breaker override %q: invalid success threshold", item)
		}
		timeout, err := time.ParseDuration(parts[2])
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("breaker override %q: invalid timeout", item)
		}
		cfg := b.Defaults()
		cfg.FailureThreshold = fail
		cfg.SuccessThreshold = success
		cfg.Timeout = timeout
		out[name] = cfg
	}
	return out, nil
}

// DefaultJWTSigningKey is the placeholder admin signing key. It is only
// accepted with the sqlite driver or when AllowDevKey is set.
const DefaultJWTSigningKey = "dev-secret-key-change-in-production"

// Admin configures the bearer token guard on the admin routes.
type Admin struct {
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"rustokio"`
	JWTAudience   string `env:"JWT_AUDIENCE" envDefault:"rustokio-admin"`
	AllowDevKey   bool   `env:"ALLOW_DEV_KEY"`
}

// Tracing exports spans over OTLP/HTTP when Endpoint is set.
type Tracing struct {
	Endpoint    string  `env:"ENDPOINT"`
	ServiceName string  `env:"SERVICE_NAME" envDefault:"rustokio"`
	SampleRatio float64 `env:"SAMPLE_RATIO" envDefault:"1"`
}

// Modules points at an optional YAML manifest; empty uses the built-in set.
type Modules struct {
	ManifestPath string `env:"MANIFEST"`
}

type Projection struct {
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"168h"`
}

// FromEnv builds the config from the process environment so main stays lean.
func FromEnv() (Config, error) {
	return Load(nil)
}

// Load parses environ, or the process environment when environ is nil, and
// validates the result.
func Load(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      "RUSTOKIO_",
		Environment: environ,
	}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("RUSTOKIO_POSTGRES_URL is required with the postgres driver"))
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("RUSTOKIO_STORAGE_SQLITE_PATH is required with the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("RUSTOKIO_KAFKA_BROKERS is required when kafka is enabled"))
	}
	if c.Dispatcher.RetryCount < 0 {
		errs = append(errs, errors.New("dispatcher retry count must not be negative"))
	}
	switch {
	case c.Admin.JWTSigningKey == "":
		errs = append(errs, errors.New("RUSTOKIO_ADMIN_JWT_SIGNING_KEY is required"))
	case c.Admin.JWTSigningKey == DefaultJWTSigningKey && c.Storage.Driver != DriverSQLite && !c.Admin.AllowDevKey:
		errs = append(errs, errors.New("RUSTOKIO_ADMIN_JWT_SIGNING_KEY must be set; the built-in development key is refused "+
			"unless RUSTOKIO_ADMIN_ALLOW_DEV_KEY is true"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("RUSTOKIO_OTEL_SAMPLE_RATIO must be within [0, 1]"))
	}
	if _, err := c.Breaker.ParsedOverrides(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
