package db

import (
	"fmt"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialect picks the gorm driver for a DSN:
//
//	postgres://... or postgresql://...  -> postgres
//	file:..., *.db, :memory:            -> sqlite
//	anything else                        -> mysql
func Dialect(dsn string) string {
	d := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(d, "file:"), strings.HasSuffix(d, ".db"), strings.Contains(d, ":memory:"):
		return "sqlite"
	default:
		return "mysql"
	}
}

func dialector(dsn string) gorm.Dialector {
	switch Dialect(dsn) {
	case "postgres":
		return postgres.Open(dsn)
	case "sqlite":
		return gormsqlite.Open(dsn)
	default:
		return mysql.Open(dsn)
	}
}

// Connect opens the database and tunes the connection pool. The returned
// handle is shared by every request; callers pass it down explicitly.
func Connect(dsn string, logSQL bool) (*gorm.DB, error) {
	gormLogger := logger.Default
	if !logSQL {
		gormLogger = gormLogger.LogMode(logger.Silent)
	}

	gdb, err := gorm.Open(dialector(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	if Dialect(dsn) == "sqlite" {
		// single writer; WAL lets readers proceed alongside it
		sqlDB.SetMaxOpenConns(1)
		_, _ = sqlDB.Exec("PRAGMA journal_mode = WAL;")
		_, _ = sqlDB.Exec("PRAGMA foreign_keys = ON;")
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return gdb, nil
}

// AutoMigrate creates or updates the tables for every persisted model.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.User{},
		&chat.Session{},
		&chat.Message{},
		&chat.Job{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
