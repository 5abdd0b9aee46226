// Package store provides persisted session token slots.
//
// Every driver holds at most one entry under changedesk.TokenKey. Absence of
// the entry is a valid state and is reported as ok == false, never as an error.
package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/chimerakang/changedesk"
)

// Driver identifiers supported by New.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// ErrUnsupportedDriver is returned by New for an unknown driver name.
var ErrUnsupportedDriver = errors.New("unsupported token store driver")

// Config describes the store selection parameters.
type Config struct {
	Driver string
	// Key overrides changedesk.TokenKey.
	Key    string
	File   *FileConfig
	Redis  *RedisConfig
	SQLite *SQLiteConfig
}

// FileConfig places the token document on disk.
type FileConfig struct {
	Dir string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// SQLiteConfig names the database to open when no handle is injected.
type SQLiteConfig struct {
	DSN string
}

// Dependencies captures external handles required by certain drivers.
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// New creates a token store based on the provided configuration.
func New(cfg Config, deps Dependencies) (changedesk.TokenStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		if cfg.File == nil || cfg.File.Dir == "" {
			return nil, fmt.Errorf("changedesk/store: file driver requires a directory")
		}
		return NewFile(cfg.File.Dir, cfg.key())
	case DriverSQLite:
		db := deps.SQLiteDB
		if db == nil {
			if cfg.SQLite == nil || cfg.SQLite.DSN == "" {
				return nil, fmt.Errorf("changedesk/store: sqlite driver requires a database handle or DSN")
			}
			var err error
			db, err = OpenSQLite(cfg.SQLite.DSN)
			if err != nil {
				return nil, err
			}
		}
		return NewSQLite(db, cfg.key())
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("changedesk/store: %w: %s", ErrUnsupportedDriver, driver)
	}
}

func (c Config) key() string {
	if c.Key != "" {
		return c.Key
	}
	return changedesk.TokenKey
}
