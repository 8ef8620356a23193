package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"invoicer/internal/logger"
)

// CollectionRecord is the single table backing the SQL store: one row per
// collection key holding the whole JSON document.
type CollectionRecord struct {
	Key       string `gorm:"primaryKey;size:64"`
	Data      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (CollectionRecord) TableName() string { return "collections" }

// SQL is a Store on top of gorm, usable with SQLite or PostgreSQL.
type SQL struct {
	db  *gorm.DB
	log zerolog.Logger
}

// OpenSQLite opens (or creates) a SQLite database at path.
func OpenSQLite(path string) (*SQL, error) {
	return openSQL(sqlite.Open(path), "sqlite")
}

// OpenPostgres connects with a URL or key=value DSN.
func OpenPostgres(dsn string) (*SQL, error) {
	return openSQL(postgres.Open(NormalizeDSN(dsn)), "postgres")
}

// NewSQL wraps an existing gorm handle and migrates the collections table.
func NewSQL(db *gorm.DB) (*SQL, error) {
	const op = "NewSQL"

	if err := db.AutoMigrate(&CollectionRecord{}); err != nil {
		return nil, fmt.Errorf("%s: failed to migrate collections table: %w", op, errors.Join(ErrUnavailable, err))
	}
	return &SQL{db: db, log: logger.WithComponent("store-sql")}, nil
}

func openSQL(dialector gorm.Dialector, driver string) (*SQL, error) {
	const op = "openSQL"

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open %s database: %w", op, driver, errors.Join(ErrUnavailable, err))
	}
	return NewSQL(db)
}

func (s *SQL) Load(ctx context.Context, key Key) ([]byte, error) {
	var rec CollectionRecord
	err := s.db.WithContext(ctx).Where("key = ?", string(key)).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.log.Error().Err(err).Str("key", string(key)).Msg("Failed to load collection row")
		return nil, newStorageError("load", key, err)
	}
	return []byte(rec.Data), nil
}

func (s *SQL) Save(ctx context.Context, key Key, data []byte) error {
	rec := CollectionRecord{Key: string(key), Data: string(data)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		s.log.Error().Err(err).Str("key", string(key)).Msg("Failed to upsert collection row")
		return newStorageError("save", key, err)
	}
	return nil
}

func (s *SQL) Remove(ctx context.Context, key Key) error {
	err := s.db.WithContext(ctx).Where("key = ?", string(key)).Delete(&CollectionRecord{}).Error
	if err != nil {
		return newStorageError("remove", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var kvPairRegex = regexp.MustCompile(`(?i)\b(host|user|password|dbname|port|sslmode)=`)

// NormalizeDSN accepts either a URL style DSN (postgres://...) or a lib/pq
// key=value list, trims quotes and whitespace, and defaults sslmode to
// disable for key=value lists.
func NormalizeDSN(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"'")
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return s
	}
	if !kvPairRegex.MatchString(s) {
		return s
	}
	cleaned := strings.Join(strings.Fields(s), " ")
	if !strings.Contains(strings.ToLower(cleaned), "sslmode=") {
		cleaned += " sslmode=disable"
	}
	return cleaned
}
