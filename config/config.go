package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Auth         AuthConfig         `yaml:"auth"`
	Booking      BookingConfig      `yaml:"booking"`
	Notification NotificationConfig `yaml:"notification"`
	Push         PushConfig         `yaml:"push"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                    string `yaml:"driver"` // postgres or sqlite
	DSN                       string `yaml:"dsn"`
	MaxOpenConns              int    `yaml:"max_open_conns"`
	MaxIdleConns              int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes    int    `yaml:"conn_max_lifetime_minutes"`
	EnableExclusionConstraint bool   `yaml:"enable_exclusion_constraint"`
}

// AuthConfig holds the settings used to verify bearer tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// BookingConfig holds the reservation intake and lifecycle policy.
type BookingConfig struct {
	TaxRate                 float64       `yaml:"tax_rate"`
	LockWaitMillis          int           `yaml:"lock_wait_ms"`
	LockWait                time.Duration `yaml:"-"`
	LockBackend             string        `yaml:"lock_backend"` // local or redis
	AllowCancelAfterConfirm bool          `yaml:"allow_cancel_after_confirm"`
}

// NotificationConfig sizes the live delivery pipeline.
type NotificationConfig struct {
	Workers      int `yaml:"workers"`
	QueueSize    int `yaml:"queue_size"`
	StreamBuffer int `yaml:"stream_buffer"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// RedisConfig holds the Redis connection used by the distributed room lock.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	LockTTLMs   int           `yaml:"lock_ttl_ms"`
	LockTTL     time.Duration `yaml:"-"`
	KeyPrefix   string        `yaml:"key_prefix"`
	DialTimeout int           `yaml:"dial_timeout_ms"`
}

// KafkaConfig holds the lifecycle event stream settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// CatalogConfig holds the room catalog cache and upstream sync settings.
type CatalogConfig struct {
	CacheTTLSeconds int               `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration     `yaml:"-"`
	Sync            CatalogSyncConfig `yaml:"sync"`
}

// CatalogSyncConfig holds the catalog importer configuration.
type CatalogSyncConfig struct {
	Enabled         bool               `yaml:"enabled"`
	IntervalSeconds int                `yaml:"interval_seconds"`
	Interval        time.Duration      `yaml:"-"` // Ignored by YAML parser
	HTTPProxy       string             `yaml:"http_proxy"`
	Request         CatalogSyncRequest `yaml:"request"`
}

// CatalogSyncRequest defines the HTTP request for the catalog importer.
type CatalogSyncRequest struct {
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	PageSize int               `yaml:"pageSize"`
}

// TelemetryConfig holds the OpenTelemetry exporter settings.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	URLPath      string `yaml:"url_path"`
	AuthHeader   string `yaml:"auth_header"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would produce wrong prices or make the
// service misbehave silently.
func (cfg *Config) Validate() error {
	rate := cfg.Booking.TaxRate
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return fmt.Errorf("booking.tax_rate must be a finite, non-negative number, got %v", rate)
	}
	switch cfg.Booking.LockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("booking.lock_backend must be local or redis, got %q", cfg.Booking.LockBackend)
	}
	return nil
}

// applyEnv lets deployment secrets override the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
}

// ApplyDefaults fills zero values with working defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Booking.LockWaitMillis <= 0 {
		cfg.Booking.LockWaitMillis = 2000
	}
	cfg.Booking.LockWait = time.Duration(cfg.Booking.LockWaitMillis) * time.Millisecond
	if cfg.Booking.LockBackend == "" {
		cfg.Booking.LockBackend = "local"
	}

	if cfg.Notification.Workers <= 0 {
		cfg.Notification.Workers = 4
	}
	if cfg.Notification.QueueSize <= 0 {
		cfg.Notification.QueueSize = 256
	}
	if cfg.Notification.StreamBuffer <= 0 {
		cfg.Notification.StreamBuffer = 16
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.Redis.LockTTLMs <= 0 {
		cfg.Redis.LockTTLMs = 10000
	}
	cfg.Redis.LockTTL = time.Duration(cfg.Redis.LockTTLMs) * time.Millisecond
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "stays:room-lock:"
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "reservation-events"
	}

	if cfg.Catalog.CacheTTLSeconds <= 0 {
		cfg.Catalog.CacheTTLSeconds = 60
	}
	cfg.Catalog.CacheTTL = time.Duration(cfg.Catalog.CacheTTLSeconds) * time.Second
	if cfg.Catalog.Sync.IntervalSeconds <= 0 {
		cfg.Catalog.Sync.IntervalSeconds = 300
	}
	cfg.Catalog.Sync.Interval = time.Duration(cfg.Catalog.Sync.IntervalSeconds) * time.Second
	if cfg.Catalog.Sync.Request.PageSize <= 0 {
		cfg.Catalog.Sync.Request.PageSize = 100
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "staysd"
	}
	if cfg.Telemetry.URLPath == "" {
		cfg.Telemetry.URLPath = "/v1/traces"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
