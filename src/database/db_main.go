package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fxscheduler/src/database/migrations"
	"fxscheduler/src/model"
)

// MainDB is the read/write connection used by the repositories.
var MainDB *gorm.DB

// Dialector picks the gorm driver for the configured backend.
func Dialector(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql":
		return postgres.Open(cfg.DatabaseURLMain), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(cfg.DatabaseURLMain), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// InitMainDB opens the main database and runs schema and data migrations.
// It is a no-op when ENABLE_DB is false; repositories are then unusable and
// callers fall back to the CSV results file.
func InitMainDB() error {
	config := GetConfig()
	if !config.EnableDB {
		logrus.Warn("[database] ENABLE_DB=false, persistence disabled")
		return nil
	}

	dialector, err := Dialector(config)
	if err != nil {
		return err
	}

	db, err := gorm.Open(dialector,
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxOpenConns / 2)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	if err := Migrate(db); err != nil {
		return err
	}

	// Assign to the global variable only after a successful migration.
	MainDB = db

	logrus.WithField("driver", config.Driver).Info("[database] MainDB ready")
	return nil
}

// Migrate creates the schema and applies pending data migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.TradeResult{},
		&model.Exception{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations on MainDB: %w", err)
	}
	return nil
}

// Enabled reports whether InitMainDB opened a connection.
func Enabled() bool {
	return MainDB != nil
}
