// Package config loads the Warden service configuration from TOML files and
// WARDEN_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/warden/internal/detector"
	"github.com/JaimeStill/warden/pkg/database"
	"github.com/JaimeStill/warden/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvWardenEnv             = "WARDEN_ENV"
	EnvWardenConfigDir       = "WARDEN_CONFIG_DIR"
	EnvWardenShutdownTimeout = "WARDEN_SHUTDOWN_TIMEOUT"
	EnvWardenVersion         = "WARDEN_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "WARDEN_DB_HOST",
	Port:            "WARDEN_DB_PORT",
	Name:            "WARDEN_DB_NAME",
	User:            "WARDEN_DB_USER",
	Password:        "WARDEN_DB_PASSWORD",
	SSLMode:         "WARDEN_DB_SSL_MODE",
	ApplicationName: "WARDEN_DB_APPLICATION_NAME",
	MaxOpenConns:    "WARDEN_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "WARDEN_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "WARDEN_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "WARDEN_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	Provider:         "WARDEN_STORAGE_PROVIDER",
	ContainerName:    "WARDEN_STORAGE_CONTAINER_NAME",
	ConnectionString: "WARDEN_STORAGE_CONNECTION_STRING",
	ServiceURL:       "WARDEN_STORAGE_SERVICE_URL",
	Endpoint:         "WARDEN_STORAGE_ENDPOINT",
	AccessKey:        "WARDEN_STORAGE_ACCESS_KEY",
	SecretKey:        "WARDEN_STORAGE_SECRET_KEY",
	Region:           "WARDEN_STORAGE_REGION",
	UseSSL:           "WARDEN_STORAGE_USE_SSL",
}

var detectorEnv = &detector.Env{
	BaseURL:      "WARDEN_DETECTOR_BASE_URL",
	Token:        "WARDEN_DETECTOR_TOKEN",
	Timeout:      "WARDEN_DETECTOR_TIMEOUT",
	MaxRetries:   "WARDEN_DETECTOR_MAX_RETRIES",
	RetryBackoff: "WARDEN_DETECTOR_RETRY_BACKOFF",
}

// Config is the root configuration for the Warden service.
type Config struct {
	Server          ServerConfig       `toml:"server"`
	Database        database.Config    `toml:"database"`
	Storage         storage.Config     `toml:"storage"`
	API             APIConfig          `toml:"api"`
	Verification    VerificationConfig `toml:"verification"`
	Detector        detector.Config    `toml:"detector"`
	Logging         LoggingConfig      `toml:"logging"`
	ShutdownTimeout string             `toml:"shutdown_timeout"`
	Version         string             `toml:"version"`
}

// Env returns the WARDEN_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvWardenEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads config.toml from WARDEN_CONFIG_DIR (default: the working
// directory) if present, applies the config.<WARDEN_ENV>.toml overlay if
// present, and finalizes all values. Without files, defaults and
// environment variables provide everything.
func Load() (*Config, error) {
	dir := os.Getenv(EnvWardenConfigDir)
	if dir == "" {
		dir = "."
	}
	return LoadDir(dir)
}

// LoadDir is Load with an explicit config directory.
func LoadDir(dir string) (*Config, error) {
	cfg := &Config{}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open config dir: %w", err)
	}
	defer root.Close()

	if _, err := root.Stat(BaseConfigFile); err == nil {
		loaded, err := load(root, BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if name := overlayName(root); name != "" {
		overlay, err := load(root, name)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", name, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Verification.Merge(&overlay.Verification)
	c.Detector.Merge(&overlay.Detector)
	c.Logging.Merge(&overlay.Logging)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}

	sections := []struct {
		name     string
		finalize func() error
	}{
		{"server", c.Server.Finalize},
		{"database", func() error { return c.Database.Finalize(databaseEnv) }},
		{"storage", func() error { return c.Storage.Finalize(storageEnv) }},
		{"api", c.API.Finalize},
		{"verification", c.Verification.Finalize},
		{"detector", func() error { return c.Detector.Finalize(detectorEnv) }},
		{"logging", c.Logging.Finalize},
	}

	for _, s := range sections {
		if err := s.finalize(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvWardenShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvWardenVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(root *os.Root, name string) (*Config, error) {
	data, err := root.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayName(root *os.Root) string {
	if env := os.Getenv(EnvWardenEnv); env != "" {
		name := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := root.Stat(name); err == nil {
			return name
		}
	}
	return ""
}
