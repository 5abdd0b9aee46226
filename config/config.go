// Package config loads the console configuration from an optional YAML file,
// a .env file and CHANGEDESK_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chimerakang/changedesk"
	"github.com/chimerakang/changedesk/logging"
	"github.com/chimerakang/changedesk/store"
)

// Config is the full console configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Audit   AuditConfig   `yaml:"audit"`
}

// APIConfig locates the bureau API.
type APIConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	JWKSURL string        `yaml:"jwks_url"`
}

// StoreConfig selects where the session token is kept.
type StoreConfig struct {
	Driver        string `yaml:"driver"`
	Dir           string `yaml:"dir"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	SQLiteDSN     string `yaml:"sqlite_dsn"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables Prometheus metrics. When File is set the metrics are
// written there in text format when the console exits.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

// AuditConfig enables the audit trail, written as JSON lines to File.
type AuditConfig struct {
	File string `yaml:"file"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	dir := ".changedesk"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".changedesk")
	}
	return &Config{
		API:   APIConfig{URL: changedesk.DefaultAPIURL, Timeout: changedesk.DefaultTimeout},
		Store: StoreConfig{Driver: store.DriverFile, Dir: dir},
		Log:   LogConfig{Level: "warn", Format: "console"},
	}
}

// Load builds the configuration. path may be empty; a missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("changedesk/config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("changedesk/config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.API.URL, "CHANGEDESK_API_URL")
	setString(&c.API.JWKSURL, "CHANGEDESK_JWKS_URL")
	setString(&c.Store.Driver, "CHANGEDESK_STORE_DRIVER")
	setString(&c.Store.Dir, "CHANGEDESK_STORE_DIR")
	setString(&c.Store.RedisAddr, "CHANGEDESK_REDIS_ADDR")
	setString(&c.Store.RedisPassword, "CHANGEDESK_REDIS_PASSWORD")
	setString(&c.Store.SQLiteDSN, "CHANGEDESK_SQLITE_DSN")
	setString(&c.Log.Level, "CHANGEDESK_LOG_LEVEL")
	setString(&c.Log.Format, "CHANGEDESK_LOG_FORMAT")
	setString(&c.Metrics.File, "CHANGEDESK_METRICS_FILE")
	setString(&c.Audit.File, "CHANGEDESK_AUDIT_FILE")

	if v := os.Getenv("CHANGEDESK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("changedesk/config: invalid CHANGEDESK_TIMEOUT: %w", err)
		}
		c.API.Timeout = d
	}
	if v := os.Getenv("CHANGEDESK_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("changedesk/config: invalid CHANGEDESK_REDIS_DB: %w", err)
		}
		c.Store.RedisDB = n
	}
	if v := os.Getenv("CHANGEDESK_METRICS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("changedesk/config: invalid CHANGEDESK_METRICS: %w", err)
		}
		c.Metrics.Enabled = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the values that cannot be defaulted later.
func (c *Config) Validate() error {
	if c.API.Timeout < 0 {
		return errors.New("changedesk/config: api timeout must not be negative")
	}
	switch c.Store.Driver {
	case "", store.DriverMemory:
	case store.DriverFile:
		if c.Store.Dir == "" {
			return errors.New("changedesk/config: file store requires a directory")
		}
	case store.DriverRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("changedesk/config: redis store requires an address")
		}
	case store.DriverSQLite:
		if c.Store.SQLiteDSN == "" {
			return errors.New("changedesk/config: sqlite store requires a DSN")
		}
	default:
		return fmt.Errorf("changedesk/config: %w: %s", store.ErrUnsupportedDriver, c.Store.Driver)
	}
	return nil
}

// Client returns the root client configuration.
func (c *Config) Client() changedesk.Config {
	return changedesk.Config{
		APIURL:  c.API.URL,
		Timeout: c.API.Timeout,
		JWKSUrl: c.API.JWKSURL,
	}
}

// TokenStore returns the token store selection.
func (c *Config) TokenStore() store.Config {
	sc := store.Config{Driver: c.Store.Driver}
	switch c.Store.Driver {
	case store.DriverFile:
		sc.File = &store.FileConfig{Dir: c.Store.Dir}
	case store.DriverRedis:
		sc.Redis = &store.RedisConfig{
			Addr:     c.Store.RedisAddr,
			Password: c.Store.RedisPassword,
			DB:       c.Store.RedisDB,
		}
	case store.DriverSQLite:
		sc.SQLite = &store.SQLiteConfig{DSN: c.Store.SQLiteDSN}
	}
	return sc
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}
