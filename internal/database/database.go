package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"funnelscope/internal/config"
	"funnelscope/internal/sessions"
)

// DBManager owns the SQLite connection used by the whole process.
type DBManager struct {
	db     *gorm.DB
	cfg    *config.Config
	logger *slog.Logger
}

// NewDBManager creates a new database manager for the configured SQLite file.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	return &DBManager{
		cfg:    cfg,
		logger: logger,
	}
}

// Init opens the database connection, applies the SQLite pragmas and bounds
// the connection pool. It must be called once before GetConnection.
func (dm *DBManager) Init() error {
	dsn := BuildDSN(dm.cfg.DatabaseName)

	if dir := filepath.Dir(dm.cfg.DatabaseName); dir != "." && !strings.HasPrefix(dm.cfg.DatabaseName, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", dm.cfg.DatabaseName, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access underlying connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(dm.cfg.GetMaxOpenConns())
	sqlDB.SetMaxIdleConns(dm.cfg.GetMaxIdleConns())
	sqlDB.SetConnMaxLifetime(time.Hour)

	dm.db = db
	dm.logger.Info("Database connection established",
		slog.String("path", dm.cfg.DatabaseName),
		slog.Int("max_open_conns", dm.cfg.GetMaxOpenConns()))
	return nil
}

// BuildDSN turns a database path into a SQLite DSN with the pragmas the
// service relies on: WAL journaling, a busy timeout for concurrent writers,
// immediate transactions, and foreign keys. Paths that already carry DSN
// parameters (the shared in-memory test databases) are passed through.
func BuildDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", path)
}

// GetConnection returns the shared gorm handle, or nil before Init.
func (dm *DBManager) GetConnection() *gorm.DB {
	return dm.db
}

// CheckpointWAL forces a WAL checkpoint with the given mode (PASSIVE, FULL,
// RESTART or TRUNCATE).
func (dm *DBManager) CheckpointWAL(mode string) error {
	if dm.db == nil {
		return gorm.ErrInvalidDB
	}
	return dm.db.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)).Error
}

// MigrateDatabase runs the schema migrations.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	// Run migrations in a transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&sessions.Session{},
			&sessions.StageEvent{},
		)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

// PerformWrite runs fn inside a transaction, retrying a handful of times
// when SQLite reports the database as busy or locked. All mutating batch
// operations go through this helper so writers back off instead of failing
// on transient lock contention.
func PerformWrite(logger *slog.Logger, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	const maxAttempts = 3

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = db.Transaction(fn)
		if err == nil {
			return nil
		}
		if !isBusyError(err) {
			return err
		}
		logger.Warn("Database busy, retrying write",
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	return fmt.Errorf("write failed after %d attempts: %w", maxAttempts, err)
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
