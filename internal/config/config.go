package config

import (
	"fmt"
	"os"
	"time"

	"github.com/vjranagit/promdash/pkg/storage"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Panel   PanelConfig   `json:"panel"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr string        `json:"listen_addr"`
	Timeout    time.Duration `json:"timeout"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Path             string `json:"path"`
	RetentionDays    int    `json:"retention_days"`
	CompressionLevel int    `json:"compression_level"`
	MaxOpenFiles     int    `json:"max_open_files"`
	EnableWAL        bool   `json:"enable_wal"`
	LookbackSeconds  int    `json:"lookback_seconds"`
	BatchSize        int    `json:"batch_size"`
	CacheCapacity    int    `json:"cache_capacity"`
	CacheTTLSeconds  int    `json:"cache_ttl_seconds"`
}

// PanelConfig holds panel session configuration
type PanelConfig struct {
	// BackendURL is the base URL panels query. Empty means the server's
	// own listen address.
	BackendURL string `json:"backend_url"`
	// DefaultRangeSeconds is the range a fresh panel session starts with.
	DefaultRangeSeconds int64 `json:"default_range_seconds"`
	// QueryTimeout caps a single panel query.
	QueryTimeout time.Duration `json:"query_timeout"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: getEnv("LISTEN_ADDR", ":9090"),
			Timeout:    30 * time.Second,
		},
		Storage: StorageConfig{
			Path:             getEnv("STORAGE_PATH", "./data"),
			RetentionDays:    getEnvInt("RETENTION_DAYS", 30),
			CompressionLevel: getEnvInt("COMPRESSION_LEVEL", 3),
			MaxOpenFiles:     getEnvInt("MAX_OPEN_FILES", 1000),
			EnableWAL:        getEnvBool("ENABLE_WAL", true),
			LookbackSeconds:  getEnvInt("QUERY_LOOKBACK_SECONDS", 300),
			BatchSize:        getEnvInt("WRITE_BATCH_SIZE", 64),
			CacheCapacity:    getEnvInt("QUERY_CACHE_CAPACITY", 256),
			CacheTTLSeconds:  getEnvInt("QUERY_CACHE_TTL_SECONDS", 30),
		},
		Panel: PanelConfig{
			BackendURL:          getEnv("PANEL_BACKEND_URL", ""),
			DefaultRangeSeconds: int64(getEnvInt("PANEL_DEFAULT_RANGE_SECONDS", 3600)),
			QueryTimeout:        time.Duration(getEnvInt("PANEL_QUERY_TIMEOUT_SECONDS", 30)) * time.Second,
		},
	}
}

// ToStorageConfig converts to storage.Config
func (c *Config) ToStorageConfig() *storage.Config {
	return &storage.Config{
		Path:             c.Storage.Path,
		RetentionDays:    c.Storage.RetentionDays,
		CompressionLevel: c.Storage.CompressionLevel,
		MaxOpenFiles:     c.Storage.MaxOpenFiles,
		EnableWAL:        c.Storage.EnableWAL,
		Lookback:         time.Duration(c.Storage.LookbackSeconds) * time.Second,
		BatchSize:        c.Storage.BatchSize,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if c.Storage.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1")
	}

	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be between 1 and 4")
	}

	if c.Panel.DefaultRangeSeconds <= 0 {
		return fmt.Errorf("panel default range must be positive")
	}

	if c.Panel.QueryTimeout <= 0 {
		return fmt.Errorf("panel query timeout must be positive")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
