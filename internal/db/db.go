package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hotel-stays-backend/config"
	"hotel-stays-backend/internal/model"
)

// Init opens the configured database, sizes the pool and runs migrations.
func Init(cfg *config.DatabaseConfig, log *zap.Logger, development bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	level := logger.Warn
	if development {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer; one connection keeps transactions from
		// tripping over each other's file locks.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info("running database migrations", zap.String("driver", cfg.Driver))
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.Driver == "postgres" && cfg.EnableExclusionConstraint {
		log.Info("applying reservation overlap exclusion constraint")
		if err := applyOverlapConstraint(db); err != nil {
			log.Warn("failed to apply overlap constraint, relying on the room lock only", zap.Error(err))
		}
	}

	log.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Hotel{},
		&model.Room{},
		&model.Reservation{},
		&model.NotificationRecord{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// applyOverlapConstraint makes postgres itself refuse two active
// reservations with intersecting [check_in, check_out) ranges for a room.
func applyOverlapConstraint(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS btree_gist;",

		"ALTER TABLE reservations DROP CONSTRAINT IF EXISTS reservations_stay_valid;",
		"ALTER TABLE reservations " +
			"ADD CONSTRAINT reservations_stay_valid CHECK (check_in < check_out);",

		"ALTER TABLE reservations DROP CONSTRAINT IF EXISTS reservations_no_overlap;",
		"ALTER TABLE reservations ADD CONSTRAINT reservations_no_overlap " +
			"EXCLUDE USING GIST (room_id WITH =, tstzrange(check_in, check_out, '[)') WITH &&) " +
			"WHERE (status IN ('pending', 'confirmed'));",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
