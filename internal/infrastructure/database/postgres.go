package database

import (
	"context"
	"fmt"
	"log"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	migrate "github.com/rubenv/sql-migrate"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/johnquangdev/transcript-indexer/errors"
	"github.com/johnquangdev/transcript-indexer/pkg/config"
)

// NewPostgresDB opens the PostgreSQL connection using GORM. The first ping
// is retried with exponential backoff for up to DB_CONNECT_WAIT so the API
// can start alongside the database container.
func NewPostgresDB(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	dsn := cfg.GetDatabaseDSN()

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Warn)
	if cfg.Server.Environment == "production" {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, errors.ErrDBConnectionFailed(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.ErrDBConnectionFailed(fmt.Errorf("failed to get database object: %w", err))
	}

	// Connection pool settings
	sqlDB.SetMaxOpenConns(cfg.Database.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MinConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = cfg.Database.ConnectWait

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			log.Printf("⏳ Database not ready: %v", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(bo, ctx)); err != nil {
		sqlDB.Close()
		return nil, errors.ErrDBConnectionFailed(fmt.Errorf("failed to ping database: %w", err))
	}

	log.Println("✅ Database connected successfully")

	return db, nil
}

// Migrate applies (or rolls back) the sql-migrate files in dir. max limits
// the number of steps; 0 means all.
func Migrate(db *gorm.DB, dir string, direction migrate.MigrationDirection, max int) (int, error) {
	migrations := &migrate.FileMigrationSource{
		Dir: dir,
	}

	sqlDB, err := db.DB()
	if err != nil {
		return 0, fmt.Errorf("failed to get db connection during migrate, error: %v", err)
	}

	n, err := migrate.ExecMax(sqlDB, "postgres", migrations, direction, max)
	if err != nil {
		return n, fmt.Errorf("failed to apply migration, error: %v", err)
	}
	return n, nil
}

// AutoMigrate runs all pending migrations from dir
func AutoMigrate(db *gorm.DB, dir string) error {
	log.Printf("🔄 Applying migrations from %s/ using sql-migrate...", dir)

	n, err := Migrate(db, dir, migrate.Up, 0)
	if err != nil {
		return err
	}

	log.Printf("✅ Applied %d migrations!\n", n)
	return nil
}

// CloseDB closes the database connection
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database object: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	log.Println("✅ Database connection closed")
	return nil
}
