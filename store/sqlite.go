package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/chimerakang/changedesk"
)

// SessionToken is the single-row-per-key table backing the sqlite driver.
type SessionToken struct {
	Name      string `gorm:"primaryKey;size:64"`
	Token     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (SessionToken) TableName() string { return "session_tokens" }

type sqliteStore struct {
	db  *gorm.DB
	key string
}

// OpenSQLite opens a gorm handle on the given DSN with gorm's logger silenced.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("changedesk/store: open sqlite: %w", err)
	}
	return db, nil
}

// NewSQLite builds a SQLite-backed token store and migrates its table.
func NewSQLite(db *gorm.DB, key string) (changedesk.TokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("changedesk/store: sqlite store requires database handle")
	}
	if err := db.AutoMigrate(&SessionToken{}); err != nil {
		return nil, fmt.Errorf("changedesk/store: migrate: %w", err)
	}
	return &sqliteStore{db: db, key: key}, nil
}

func (s *sqliteStore) Get(ctx context.Context) (string, bool, error) {
	var row SessionToken
	err := s.db.WithContext(ctx).Where("name = ?", s.key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("changedesk/store: sqlite get: %w", err)
	}
	return row.Token, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, token string) error {
	row := SessionToken{Name: s.key, Token: token, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("changedesk/store: sqlite set: %w", err)
	}
	return nil
}

func (s *sqliteStore) Remove(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("name = ?", s.key).Delete(&SessionToken{}).Error; err != nil {
		return fmt.Errorf("changedesk/store: sqlite delete: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
