package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BradenHooton/usermgmt/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into domain errors. Anything that
// is not a recognised constraint or missing row means the store itself failed
// and is reported as ErrRepositoryUnavailable.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", models.ErrConflict, constraintField(pgErr.ConstraintName))
		case "22P02": // invalid_text_representation, e.g. a malformed uuid
			return models.ErrNotFound
		case "23502", "23503", "23514": // not_null, foreign_key, check
			return fmt.Errorf("%w: %s", models.ErrBadRequest, pgErr.Message)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", models.ErrRepositoryUnavailable, err)
	}

	return fmt.Errorf("%w: %v", models.ErrRepositoryUnavailable, err)
}

// constraintField turns "users_email_key" into "email".
func constraintField(name string) string {
	name = strings.TrimPrefix(name, "users_")
	name = strings.TrimSuffix(name, "_key")
	if name == "" {
		return "duplicate value"
	}
	return name
}
