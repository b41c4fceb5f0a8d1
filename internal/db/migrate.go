package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Models lists every table managed by the application, in dependency order.
var Models = []any{
	&models.Center{},
	&models.UserCenter{},
	&models.Shortage{},
	&models.AuditLog{},
	&models.User{},
	&models.OneTimeCode{},
}

// Migrate applies the embedded SQL migrations when sqlMigrations is set (Postgres only),
// otherwise falls back to gorm AutoMigrate.
func Migrate(db *gorm.DB, sqlMigrations bool, log *zap.Logger) error {
	if sqlMigrations && db.Dialector.Name() == "postgres" {
		if err := runSQLMigrations(db, log); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		for _, m := range Models {
			if err := db.AutoMigrate(m); err != nil {
				return fmt.Errorf("automigrate %T: %w", m, err)
			}
		}
	}

	for _, table := range []string{"centers", "user_centers", "shortages", "audit_logs"} {
		if !db.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

func runSQLMigrations(db *gorm.DB, log *zap.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}
	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("No migrations to apply (database up-to-date)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, _, _ := m.Version()
	log.Info("Applied migrations successfully", zap.Uint("version", version))
	return nil
}
