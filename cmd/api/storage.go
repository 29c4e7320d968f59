package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/usermgmt/internal/config"
	"github.com/BradenHooton/usermgmt/internal/database"
	"github.com/BradenHooton/usermgmt/internal/repositories"
	"github.com/BradenHooton/usermgmt/internal/services"
)

// store is what the service layer and the health check need from storage.
type store interface {
	services.UserRepository
	Ping(ctx context.Context) error
}

// openStore connects the configured driver, applying migrations first when
// migrate is set. The returned func releases the connection.
func openStore(ctx context.Context, cfg *config.Config, migrate bool, logger *slog.Logger) (store, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if migrate {
			if err := migratePostgres(ctx, &cfg.Database, logger); err != nil {
				return nil, nil, err
			}
		}
		db, err := database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return repositories.NewUserRepository(db), db.Close, nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := runMigrations(ctx, db, database.DialectSQLite, logger); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		return repositories.NewSQLiteUserRepository(db), func() { _ = db.Close() }, nil

	case config.DriverMemory:
		logger.Warn("using in-memory storage; accounts are lost on restart")
		return repositories.NewMemoryUserRepository(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// openMigrationDB opens a database/sql handle for goose.
func openMigrationDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, database.Dialect, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := database.OpenPostgresSQL(ctx, cfg.Database.URL())
		return db, database.DialectPostgres, err
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Storage.SQLitePath, logger)
		return db, database.DialectSQLite, err
	default:
		return nil, "", fmt.Errorf("storage driver %q has no migrations", cfg.Storage.Driver)
	}
}

func migratePostgres(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) error {
	db, err := database.OpenPostgresSQL(ctx, cfg.URL())
	if err != nil {
		return err
	}
	defer db.Close()

	return runMigrations(ctx, db, database.DialectPostgres, logger)
}

func runMigrations(ctx context.Context, db *sql.DB, dialect database.Dialect, logger *slog.Logger) error {
	applied, err := database.Migrate(ctx, db, dialect)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.String("dialect", string(dialect)), slog.Int("count", applied))
	return nil
}
