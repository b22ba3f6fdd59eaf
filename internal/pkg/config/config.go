package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Watch modes for the scan scheduler.
const (
	WatchModePoll   = "poll"
	WatchModeNotify = "notify"
	WatchModeAuto   = "auto"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	HTTPAddr          string `env:"HTTP_ADDR" envDefault:":8080"`
	AdminAddr         string `env:"ADMIN_ADDR" envDefault:":9091"`
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`

	WatchDir          string        `env:"WATCH_DIR" envDefault:"./Output_images"`
	StaticPrefix      string        `env:"STATIC_PREFIX" envDefault:"/Output_images"`
	ScanInterval      time.Duration `env:"SCAN_INTERVAL" envDefault:"3s"`
	ScanTimeout       time.Duration `env:"SCAN_TIMEOUT" envDefault:"1m"`
	WatchMode         string        `env:"WATCH_MODE" envDefault:"poll"`
	WatchDebounce     time.Duration `env:"WATCH_DEBOUNCE" envDefault:"500ms"`
	TimestampLocation string        `env:"TIMESTAMP_LOCATION" envDefault:"Local"`

	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"postgres"`
	PostgresURL     string        `env:"POSTGRES_URL"`
	LookupCacheSize int           `env:"LOOKUP_CACHE_SIZE" envDefault:"10000"`
	LookupCacheTTL  time.Duration `env:"LOOKUP_CACHE_TTL" envDefault:"1h"`

	RedisAddr          string `env:"REDIS_ADDR"`
	EventsStream       string `env:"EVENTS_STREAM" envDefault:"detection_events"`
	EventsStreamMaxLen int64  `env:"EVENTS_STREAM_MAXLEN" envDefault:"100000"`
	WALPath            string `env:"WAL_PATH" envDefault:"./data/wal"`
	WALSegmentSize     int64  `env:"WAL_SEGMENT_SIZE_BYTES" envDefault:"10485760"`   // 10MB
	WALMaxDiskSize     int64  `env:"WAL_MAX_DISK_SIZE_BYTES" envDefault:"104857600"` // 100MB

	RedisHealthInterval time.Duration `env:"REDIS_HEALTH_INTERVAL" envDefault:"5s"`
	ConsumerGroup       string        `env:"CONSUMER_GROUP" envDefault:"detection-notifiers"`
	ConsumerName        string        `env:"CONSUMER_NAME"`
	NotifyRetryCount    int           `env:"NOTIFY_RETRY_COUNT" envDefault:"3"`
	NotifyRetryBackoff  time.Duration `env:"NOTIFY_RETRY_BACKOFF" envDefault:"500ms"`

	MaxUploadBytes    int64   `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"` // 32MB
	MaxCategoryLen    int     `env:"MAX_CATEGORY_LEN" envDefault:"128"`
	MaxDescriptionLen int     `env:"MAX_DESCRIPTION_LEN" envDefault:"2048"`
	UploadRateLimit   float64 `env:"UPLOAD_RATE_LIMIT" envDefault:"20"`
	UploadRateBurst   int     `env:"UPLOAD_RATE_BURST" envDefault:"40"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables. Each binary then
// calls the Validate method for its own role.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateConsumer checks the settings the notification consumer needs.
func (c *Config) ValidateConsumer() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required by the consumer")
	}
	if c.ConsumerGroup == "" {
		return fmt.Errorf("CONSUMER_GROUP must not be empty")
	}
	if c.NotifyRetryBackoff < 0 {
		return fmt.Errorf("NOTIFY_RETRY_BACKOFF must not be negative")
	}
	return nil
}

// Validate rejects combinations the server cannot run with.
func (c *Config) Validate() error {
	if c.WatchDir == "" {
		return fmt.Errorf("WATCH_DIR must not be empty")
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %s", c.ScanInterval)
	}
	switch c.WatchMode {
	case WatchModePoll, WatchModeNotify, WatchModeAuto:
	default:
		return fmt.Errorf("unknown WATCH_MODE %q", c.WatchMode)
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StaticPrefix == "" || c.StaticPrefix[0] != '/' {
		return fmt.Errorf("STATIC_PREFIX must start with '/', got %q", c.StaticPrefix)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.RedisAddr != "" && c.RedisHealthInterval <= 0 {
		return fmt.Errorf("REDIS_HEALTH_INTERVAL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TIMESTAMP_LOCATION, the zone filename timestamps are
// interpreted in.
func (c *Config) Location() (*time.Location, error) {
	if c.TimestampLocation == "" || c.TimestampLocation == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimestampLocation)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMESTAMP_LOCATION %q: %w", c.TimestampLocation, err)
	}
	return loc, nil
}
