package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/usermgmt/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// OpenSQLite opens the SQLite file at path. The pool is capped at a single
// connection so that writes serialize inside the process.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if logger != nil {
		logger.Info("database connection established",
			slog.String("driver", "sqlite"),
			slog.String("path", path),
		)
	}
	return db, nil
}

// MapSQLiteError is the SQLite counterpart of MapPostgresError.
func MapSQLiteError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		msg := sqliteErr.Error()
		switch {
		case sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			strings.Contains(msg, "UNIQUE constraint failed"):
			return fmt.Errorf("%w: %s", models.ErrConflict, uniqueColumn(msg))
		default:
			return fmt.Errorf("%w: %s", models.ErrBadRequest, msg)
		}
	}

	return fmt.Errorf("%w: %v", models.ErrRepositoryUnavailable, err)
}

// uniqueColumn extracts "email" from "UNIQUE constraint failed: users.email".
func uniqueColumn(msg string) string {
	idx := strings.LastIndex(msg, "users.")
	if idx < 0 {
		return "duplicate value"
	}
	col := msg[idx+len("users."):]
	if end := strings.IndexAny(col, " ,)"); end >= 0 {
		col = col[:end]
	}
	return col
}
