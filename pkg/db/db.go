package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lisanmuaddib/steam-harvest/pkg/db/models"
)

// SetupDatabase initializes the database connection and brings the schema up
// to date. Postgres is migrated with the embedded SQL migrations, sqlite with
// gorm's AutoMigrate.
func SetupDatabase(cfg Config, logger *logrus.Logger) (*gorm.DB, error) {
	logger.WithField("driver", cfg.Driver).Debug("Starting database setup")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger: NewGormLogrusLogger(logger),
	}

	switch cfg.Driver {
	case DriverSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		logger.WithField("path", cfg.Path).Debug("Establishing GORM sqlite connection")
		db, err := gorm.Open(sqlite.Open(cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL"), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)

		if err := db.AutoMigrate(models.All()...); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate database schema: %w", err)
		}

		logger.Info("Database setup completed successfully")
		return db, nil

	case DriverPostgres:
		logger.Debug("Establishing GORM postgres connection")
		db, err := gorm.Open(postgres.Open(cfg.postgresDSN()), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if cfg.Schema != "" {
			if err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(cfg.Schema)).Error; err != nil {
				return nil, fmt.Errorf("failed to ensure schema %s: %w", cfg.Schema, err)
			}
		}

		if err := RunMigrations(cfg, logger); err != nil {
			return nil, err
		}

		logger.Info("Database setup completed successfully")
		return db, nil
	}

	return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
