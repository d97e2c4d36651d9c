package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"http_server"`
	Database DatabaseConfig `mapstructure:"database"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Source          string        `mapstructure:"source"`
}

type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LimitsConfig struct {
	MaxFileSizeBytes  int64         `mapstructure:"max_file_size_bytes"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	TempDir           string        `mapstructure:"temp_dir"`
}

type StorageConfig struct {
	// Backend selects where original receipt media goes: "local" or "gcs".
	Backend   string `mapstructure:"backend"`
	LocalPath string `mapstructure:"local_path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

type AdminConfig struct {
	// UserID is the chat-platform numeric id that is auto-authorized on first contact.
	UserID int64 `mapstructure:"user_id"`
}

// ----------------- DEFAULTS -----------------

const (
	DefaultMaxFileSizeBytes  = 10 << 20 // 10MiB
	DefaultRateLimitRequests = 10
	DefaultRateLimitWindow   = 60 * time.Second
	DefaultGeminiModel       = "gemini-2.5-pro"
	DefaultGeminiTimeout     = 30 * time.Second
)

func (c *LimitsConfig) ApplyDefaults() {
	if c.MaxFileSizeBytes <= 0 {
		c.MaxFileSizeBytes = DefaultMaxFileSizeBytes
	}
	if c.RateLimitRequests <= 0 {
		c.RateLimitRequests = DefaultRateLimitRequests
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = DefaultRateLimitWindow
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
}

func (c *GeminiConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = DefaultGeminiModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultGeminiTimeout
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds a config from environment variables for container deployments.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              int(getEnvAsInt64("SERVER_PORT", 8080)),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_URL", ""),
			MaxOpenConns:    int(getEnvAsInt64("DB_MAX_OPEN_CONNS", 10)),
			MaxIdleConns:    int(getEnvAsInt64("DB_MAX_IDLE_CONNS", 5)),
			ConnMaxLifetime: 30 * time.Minute,
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", DefaultGeminiModel),
		},
		Limits: LimitsConfig{
			MaxFileSizeBytes:  getEnvAsInt64("MAX_FILE_SIZE", DefaultMaxFileSizeBytes),
			RateLimitRequests: int(getEnvAsInt64("RATE_LIMIT_REQUESTS", DefaultRateLimitRequests)),
			RateLimitWindow:   time.Duration(getEnvAsInt64("RATE_LIMIT_WINDOW", 60)) * time.Second,
		},
		Storage: StorageConfig{
			Backend:   getEnv("STORAGE_BACKEND", "local"),
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./media"),
			GCSBucket: getEnv("STORAGE_GCS_BUCKET", ""),
		},
		Admin: AdminConfig{
			UserID: getEnvAsInt64("ADMIN_USER_ID", 0),
		},
	}
	cfg.Limits.ApplyDefaults()
	cfg.Gemini.ApplyDefaults()
	return cfg
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Gemini.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gemini config: %v", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if c.Admin.UserID == 0 {
		errs = append(errs, "admin config: user_id is required")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("api_key is required")
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case "local", "":
		if c.LocalPath == "" {
			return errors.New("local_path is required for local backend")
		}
	case "gcs":
		if c.GCSBucket == "" {
			return errors.New("gcs_bucket is required for gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	return nil
}
