// Package postgres implements the repository interfaces on gorm. PostgreSQL (through
// pgx) is the production backend; SQLite serves development and tests.
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// NewDB opens the configured database, applies pool settings and verifies connectivity.
//
// Parameters:
//   - ctx: bounds the initial ping
//   - cfg: driver, DSN parts and pool settings
//   - log: connection lifecycle logging
//
// Returns:
//   - *gorm.DB: ready handle, migrated when cfg.AutoMigrate is set
//   - error: ConfigurationError for an unknown driver, otherwise the connection error
func NewDB(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*gorm.DB, error) {
	log = log.WithComponent("Database")

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, errors.ErrConfiguration(fmt.Sprintf("unsupported database driver %q", cfg.Driver))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := Ping(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	log.Info(ctx, "database connection established",
		logger.String("driver", cfg.Driver),
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database),
	)

	if cfg.AutoMigrate {
		if err := Migrate(ctx, db); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		log.Info(ctx, "database schema migrated")
	}
	return db, nil
}

// Migrate creates or updates every table owned by the service.
func Migrate(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(
		&models.SigningKey{},
		&models.DataEncryptionKey{},
		&models.OAuthClient{},
		&models.AuthorizationCode{},
		&models.RefreshToken{},
		&models.Tenant{},
		&models.User{},
		&models.TenantMember{},
		&models.TenantOAuthCredential{},
		&models.AdminToken{},
		&models.AuditEvent{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Ping verifies the database answers within five seconds.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
