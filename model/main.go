// Package model declares the persistent schema of the gateway: the request
// log plus conversation sessions, messages, files, and budgets. Migrations run
// once at open; unique indexes are real database constraints, not conventions.
package model

import (
	"os"
	"path/filepath"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blackjuly/ultra-mcp/common/logger"
)

// OpenDB opens (creating when absent) the single-file sqlite store at path and
// applies migrations. The returned handle is safe for concurrent use; sqlite
// serializes writers internally and WAL keeps readers unblocked.
func OpenDB(path string) (*gorm.DB, error) {
	resolved, err := ensureDBPath(path)
	if err != nil {
		return nil, err
	}

	dsn := resolved + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite database %s", resolved)
	}

	// One connection serializes transactions at the pool level; deferred
	// sqlite transactions otherwise hit SQLITE_BUSY on read-to-write
	// upgrades under concurrency.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "unwrap sql.DB")
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		return nil, err
	}

	logger.Logger.Debug("database ready", zap.String("path", resolved))
	return db, nil
}

// CloseDB releases the underlying connection pool.
func CloseDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "unwrap sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "close database")
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Request{},
		&Session{},
		&ConversationMessage{},
		&ConversationFile{},
		&ConversationBudget{},
	)
	return errors.Wrap(err, "migrate schema")
}

// ensureDBPath resolves the database path and creates its parent directory.
func ensureDBPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "resolve database path %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", errors.Wrapf(err, "create database dir for %s", abs)
	}
	return filepath.Clean(abs), nil
}
