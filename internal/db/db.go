// Package db opens the store, migrates it and installs the audit and change-feed plugins.
package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/bloodboard/internal/config"
)

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

// Connect opens the configured database, retrying while Postgres starts up.
func Connect(cfg config.DatabaseConfig, log *zap.Logger, debug bool) (*gorm.DB, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	log.Info("connecting to database", zap.String("driver", cfg.Driver), zap.String("dsn", cfg.MaskedDSN()))

	if cfg.Driver == "sqlite" {
		db, err := gorm.Open(sqlite.Open(cfg.DSN()), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	}

	var db *gorm.DB
	var err error
	for i := 1; i <= connectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gcfg)
		if err == nil {
			break
		}
		log.Warn("database connection failed, retrying",
			zap.Int("attempt", i), zap.Int("max_attempts", connectAttempts), zap.Error(err))
		time.Sleep(connectBackoff)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}
	if err := db.Exec("SELECT 1").Error; err != nil {
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return db, nil
}
