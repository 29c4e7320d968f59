package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BradenHooton/usermgmt/internal/database"
	"github.com/BradenHooton/usermgmt/internal/models"
)

// Fixed width so that lexical order matches chronological order.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteUserRepository is the single-file account store. The handle it is
// given must be capped at one open connection (see database.OpenSQLite) so
// read-modify-write statements never interleave.
type SQLiteUserRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db, now: time.Now}
}

func scanSQLiteUser(scanner rowScanner) (*models.User, error) {
	var (
		user                 models.User
		lastLogin            sql.NullString
		createdAt, updatedAt string
	)

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Nickname,
		&user.FirstName, &user.LastName, &user.Bio,
		&user.ProfilePictureURL, &user.LinkedInProfileURL, &user.GitHubProfileURL,
		&user.Role, &user.IsProfessional, &user.EmailVerified,
		&user.FailedLoginAttempts, &user.IsLocked,
		&lastLogin, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}

	if user.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("%w: bad created_at: %v", models.ErrRepositoryUnavailable, err)
	}
	if user.UpdatedAt, err = time.Parse(sqliteTimeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("%w: bad updated_at: %v", models.ErrRepositoryUnavailable, err)
	}
	if lastLogin.Valid {
		t, err := time.Parse(sqliteTimeFormat, lastLogin.String)
		if err != nil {
			return nil, fmt.Errorf("%w: bad last_login_at: %v", models.ErrRepositoryUnavailable, err)
		}
		user.LastLoginAt = &t
	}

	return &user, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func (r *SQLiteUserRepository) stamp() string {
	return formatSQLiteTime(r.now())
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return scanSQLiteUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanSQLiteUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *SQLiteUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapSQLiteError(err)
	}
	return users, nil
}

func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, database.MapSQLiteError(err)
	}
	return n, nil
}

func (r *SQLiteUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	prepareNewUser(user, r.now())

	query := `INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Nickname,
		user.FirstName, user.LastName, user.Bio,
		user.ProfilePictureURL, user.LinkedInProfileURL, user.GitHubProfileURL,
		string(user.Role), user.IsProfessional, user.EmailVerified,
		user.FailedLoginAttempts, user.IsLocked,
		formatSQLiteTime(user.CreatedAt), formatSQLiteTime(user.UpdatedAt),
	)
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}
	return r.GetByID(ctx, user.ID)
}

func (r *SQLiteUserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	query := `UPDATE users SET email = ?, nickname = ?, first_name = ?, last_name = ?, bio = ?,
			profile_picture_url = ?, linkedin_profile_url = ?, github_profile_url = ?,
			is_professional = ?, updated_at = ?
		WHERE id = ?`

	err := r.exec(ctx, query,
		user.Email, user.Nickname, user.FirstName, user.LastName, user.Bio,
		user.ProfilePictureURL, user.LinkedInProfileURL, user.GitHubProfileURL,
		user.IsProfessional, r.stamp(), user.ID,
	)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, user.ID)
}

func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
}

func (r *SQLiteUserRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	n, _, err := r.RecordFailedLogin(ctx, id, 0)
	return n, err
}

func (r *SQLiteUserRepository) RecordFailedLogin(ctx context.Context, id string, lockAt int) (int, bool, error) {
	var (
		n      int
		locked bool
	)
	err := r.db.QueryRowContext(ctx,
		`UPDATE users SET
			failed_login_attempts = failed_login_attempts + 1,
			is_locked = CASE WHEN is_locked = 1 OR (?1 > 0 AND failed_login_attempts + 1 >= ?1) THEN 1 ELSE 0 END,
			updated_at = ?2
		WHERE id = ?3
		RETURNING failed_login_attempts, is_locked`, lockAt, r.stamp(), id).Scan(&n, &locked)
	if err != nil {
		return 0, false, database.MapSQLiteError(err)
	}
	return n, locked, nil
}

func (r *SQLiteUserRepository) ResetFailedAttempts(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET failed_login_attempts = 0, last_login_at = ?, updated_at = ?
		WHERE id = ? AND is_locked = 0`,
		formatSQLiteTime(at), r.stamp(), id)
	if err != nil {
		return database.MapSQLiteError(err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return database.MapSQLiteError(err)
	} else if n > 0 {
		return nil
	}

	var locked bool
	if err := r.db.QueryRowContext(ctx, `SELECT is_locked FROM users WHERE id = ?`, id).Scan(&locked); err != nil {
		return database.MapSQLiteError(err)
	}
	return models.ErrAccountLocked
}

func (r *SQLiteUserRepository) SetLocked(ctx context.Context, id string, locked bool) error {
	if locked {
		return r.exec(ctx, `UPDATE users SET is_locked = 1, updated_at = ? WHERE id = ?`, r.stamp(), id)
	}
	return r.exec(ctx,
		`UPDATE users SET is_locked = 0, failed_login_attempts = 0, updated_at = ? WHERE id = ?`,
		r.stamp(), id)
}

func (r *SQLiteUserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, r.stamp(), id)
}

func (r *SQLiteUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE users SET email_verified = 1, updated_at = ? WHERE id = ?`, r.stamp(), id)
}

func (r *SQLiteUserRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	return r.exec(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, string(role), r.stamp(), id)
}

func (r *SQLiteUserRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return database.MapSQLiteError(err)
	}
	return nil
}

func (r *SQLiteUserRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return database.MapSQLiteError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return database.MapSQLiteError(err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
