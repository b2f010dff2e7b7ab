package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("Expected default listen address :9090, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Storage.Path != "./data" {
		t.Errorf("Expected default storage path ./data, got %s", cfg.Storage.Path)
	}
	if cfg.Storage.CompressionLevel != 3 {
		t.Errorf("Expected default compression level 3, got %d", cfg.Storage.CompressionLevel)
	}
	if cfg.Panel.DefaultRangeSeconds != 3600 {
		t.Errorf("Expected default panel range 3600, got %d", cfg.Panel.DefaultRangeSeconds)
	}
	if cfg.Panel.QueryTimeout != 30*time.Second {
		t.Errorf("Expected default panel query timeout 30s, got %s", cfg.Panel.QueryTimeout)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":8080")
	t.Setenv("STORAGE_PATH", "/var/lib/promdash")
	t.Setenv("COMPRESSION_LEVEL", "2")
	t.Setenv("ENABLE_WAL", "false")
	t.Setenv("PANEL_BACKEND_URL", "http://prometheus:9090")
	t.Setenv("PANEL_DEFAULT_RANGE_SECONDS", "600")

	cfg := DefaultConfig()

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Expected listen address :8080, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Storage.Path != "/var/lib/promdash" {
		t.Errorf("Expected storage path /var/lib/promdash, got %s", cfg.Storage.Path)
	}
	if cfg.Storage.CompressionLevel != 2 {
		t.Errorf("Expected compression level 2, got %d", cfg.Storage.CompressionLevel)
	}
	if cfg.Storage.EnableWAL {
		t.Error("Expected WAL to be disabled")
	}
	if cfg.Panel.BackendURL != "http://prometheus:9090" {
		t.Errorf("Expected panel backend URL, got %s", cfg.Panel.BackendURL)
	}
	if cfg.Panel.DefaultRangeSeconds != 600 {
		t.Errorf("Expected panel range 600, got %d", cfg.Panel.DefaultRangeSeconds)
	}
}

func TestConfigEnvParseFallback(t *testing.T) {
	t.Setenv("RETENTION_DAYS", "not-a-number")

	cfg := DefaultConfig()
	if cfg.Storage.RetentionDays != 30 {
		t.Errorf("Expected fallback retention 30, got %d", cfg.Storage.RetentionDays)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen address", func(c *Config) { c.Server.ListenAddr = "" }},
		{"empty storage path", func(c *Config) { c.Storage.Path = "" }},
		{"zero retention", func(c *Config) { c.Storage.RetentionDays = 0 }},
		{"compression too low", func(c *Config) { c.Storage.CompressionLevel = 0 }},
		{"compression too high", func(c *Config) { c.Storage.CompressionLevel = 5 }},
		{"zero panel range", func(c *Config) { c.Panel.DefaultRangeSeconds = 0 }},
		{"zero panel timeout", func(c *Config) { c.Panel.QueryTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation to fail")
			}
		})
	}
}

func TestToStorageConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.LookbackSeconds = 120
	cfg.Storage.BatchSize = 32

	sc := cfg.ToStorageConfig()
	if sc.Lookback != 2*time.Minute {
		t.Errorf("Expected 2m lookback, got %s", sc.Lookback)
	}
	if sc.BatchSize != 32 {
		t.Errorf("Expected batch size 32, got %d", sc.BatchSize)
	}
	if sc.Path != cfg.Storage.Path {
		t.Errorf("Expected path %s, got %s", cfg.Storage.Path, sc.Path)
	}
}
