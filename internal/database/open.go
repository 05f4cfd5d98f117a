package database

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/config"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/feed"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/flashcards"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var errMissingTarget = errors.New("database target is required")

// Open connects to the configured store and brings its schema up to date.
func Open(cfg config.AppConfig, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gormConfig := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	var (
		db     *gorm.DB
		err    error
		target string
	)
	switch cfg.DatabaseDriver {
	case config.DriverSQLite, "":
		if cfg.DatabasePath == "" {
			return nil, errMissingTarget
		}
		target = cfg.DatabasePath
		db, err = gorm.Open(sqlite.Open(cfg.DatabasePath), gormConfig)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	case config.DriverPostgres:
		if cfg.DatabaseDSN == "" {
			return nil, errMissingTarget
		}
		target = "postgres"
		db, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), gormConfig)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}
	logger.Info("database initialized",
		zap.String("driver", cfg.DatabaseDriver),
		zap.String("target", target))
	return db, nil
}

// Migrate creates or updates every table and applies pending data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&users.User{},
		&feed.Tweet{},
		&flashcards.Deck{},
		&flashcards.Card{},
		&flashcards.StudyQueue{},
		&migrationRecord{},
	); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
