package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/BradenHooton/usermgmt/internal/database/migrations"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Dialect selects the embedded migration set.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// MigrationStatus is one row of Status output.
type MigrationStatus struct {
	Version int64
	Source  string
	Applied bool
}

func migrationFS(dialect Dialect) (fs.FS, error) {
	switch dialect {
	case DialectPostgres:
		return fs.Sub(migrations.Postgres, "postgres")
	case DialectSQLite:
		return fs.Sub(migrations.SQLite, "sqlite")
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}
}

func newProvider(db *sql.DB, dialect Dialect) (*goose.Provider, error) {
	fsys, err := migrationFS(dialect)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.Dialect(dialect), db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// Migrate applies every pending migration and returns how many ran.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) (int, error) {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return 0, err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("migration failed: %w", err)
	}
	return len(results), nil
}

// Status reports every known migration and whether it has been applied.
func Status(ctx context.Context, db *sql.DB, dialect Dialect) ([]MigrationStatus, error) {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return nil, err
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}

	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatus{
			Version: s.Source.Version,
			Source:  s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}

// OpenPostgresSQL opens a database/sql handle through lib/pq for migrations.
func OpenPostgresSQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}
