package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.ScanInterval != 3*time.Second {
		t.Errorf("ScanInterval = %s, want 3s", cfg.ScanInterval)
	}
	if cfg.WatchDir != "./Output_images" {
		t.Errorf("WatchDir = %q", cfg.WatchDir)
	}
	if cfg.StaticPrefix != "/Output_images" {
		t.Errorf("StaticPrefix = %q", cfg.StaticPrefix)
	}
	if cfg.WatchMode != WatchModePoll {
		t.Errorf("WatchMode = %q, want %q", cfg.WatchMode, WatchModePoll)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults with memory store should validate: %v", err)
	}
}

func TestLoad_PostgresDefaultNeedsURL(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "POSTGRES_URL"} {
		t.Setenv(key, "")
		os.Unsetenv(key) // restored by t.Setenv cleanup
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to require POSTGRES_URL")
	}
}

func TestValidateConsumer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{RedisAddr: "localhost:6379", ConsumerGroup: "g"}},
		{name: "no redis", cfg: Config{ConsumerGroup: "g"}, wantErr: true},
		{name: "no group", cfg: Config{RedisAddr: "localhost:6379"}, wantErr: true},
		{name: "negative backoff", cfg: Config{RedisAddr: "localhost:6379", ConsumerGroup: "g", NotifyRetryBackoff: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateConsumer()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateConsumer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			WatchDir:       "/tmp/out",
			StaticPrefix:   "/Output_images",
			ScanInterval:   time.Second,
			WatchMode:      WatchModePoll,
			StoreDriver:    StoreDriverMemory,
			MaxUploadBytes: 1024,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid memory config", mutate: func(c *Config) {}},
		{name: "postgres without url", mutate: func(c *Config) { c.StoreDriver = StoreDriverPostgres }, wantErr: true},
		{name: "postgres with url", mutate: func(c *Config) {
			c.StoreDriver = StoreDriverPostgres
			c.PostgresURL = "postgres://localhost/db"
		}},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "mysql" }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.ScanInterval = 0 }, wantErr: true},
		{name: "unknown watch mode", mutate: func(c *Config) { c.WatchMode = "inotify" }, wantErr: true},
		{name: "relative static prefix", mutate: func(c *Config) { c.StaticPrefix = "images" }, wantErr: true},
		{name: "bad location", mutate: func(c *Config) { c.TimestampLocation = "Mars/Olympus" }, wantErr: true},
		{name: "utc location", mutate: func(c *Config) { c.TimestampLocation = "UTC" }},
		{name: "redis without health interval", mutate: func(c *Config) { c.RedisAddr = "localhost:6379" }, wantErr: true},
		{name: "redis with health interval", mutate: func(c *Config) {
			c.RedisAddr = "localhost:6379"
			c.RedisHealthInterval = time.Second
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
