package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/usermgmt/internal/database"
	"github.com/BradenHooton/usermgmt/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, password_hash, nickname, first_name, last_name, bio,
	profile_picture_url, linkedin_profile_url, github_profile_url, role,
	is_professional, email_verified, failed_login_attempts, is_locked,
	last_login_at, created_at, updated_at`

// UserRepository is the Postgres account store.
type UserRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool, now: time.Now}
}

// rowScanner is satisfied by pgx.Row, pgx.Rows and *sql.Row(s).
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Nickname,
		&user.FirstName, &user.LastName, &user.Bio,
		&user.ProfilePictureURL, &user.LinkedInProfileURL, &user.GitHubProfileURL,
		&user.Role, &user.IsProfessional, &user.EmailVerified,
		&user.FailedLoginAttempts, &user.IsLocked,
		&user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &user, nil
}

func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanUserRows(rows)
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}

// Create inserts user with a fresh id. The lockout fields always start
// cleared regardless of what the caller set.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	prepareNewUser(user, r.now())

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Nickname,
		user.FirstName, user.LastName, user.Bio,
		user.ProfilePictureURL, user.LinkedInProfileURL, user.GitHubProfileURL,
		user.Role, user.IsProfessional, user.EmailVerified,
		user.FailedLoginAttempts, user.IsLocked,
		user.LastLoginAt, user.CreatedAt, user.UpdatedAt,
	))
}

// Update writes the profile fields of user. Credentials, role and lockout
// state have dedicated methods and are not touched here.
func (r *UserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		UPDATE users SET email = $1, nickname = $2, first_name = $3, last_name = $4, bio = $5,
			profile_picture_url = $6, linkedin_profile_url = $7, github_profile_url = $8,
			is_professional = $9, updated_at = $10
		WHERE id = $11
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.Email, user.Nickname, user.FirstName, user.LastName, user.Bio,
		user.ProfilePictureURL, user.LinkedInProfileURL, user.GitHubProfileURL,
		user.IsProfessional, r.now(), user.ID,
	))
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
}

// IncrementFailedAttempts adds one to the counter in a single statement and
// returns the value it produced.
func (r *UserRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	n, _, err := r.RecordFailedLogin(ctx, id, 0)
	return n, err
}

// RecordFailedLogin increments the counter and, when the new value reaches
// lockAt, sets the lock flag in the same statement. A lockAt of zero never
// locks. The lock flag is never cleared here.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, id string, lockAt int) (int, bool, error) {
	query := `
		UPDATE users SET
			failed_login_attempts = failed_login_attempts + 1,
			is_locked = is_locked OR ($1 > 0 AND failed_login_attempts + 1 >= $1),
			updated_at = $2
		WHERE id = $3
		RETURNING failed_login_attempts, is_locked`

	var (
		n      int
		locked bool
	)
	if err := r.pool.QueryRow(ctx, query, lockAt, r.now(), id).Scan(&n, &locked); err != nil {
		return 0, false, database.MapPostgresError(err)
	}
	return n, locked, nil
}

// ResetFailedAttempts clears the counter after a successful login. A locked
// account is left untouched and reported as models.ErrAccountLocked.
func (r *UserRepository) ResetFailedAttempts(ctx context.Context, id string, at time.Time) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE users SET failed_login_attempts = 0, last_login_at = $1, updated_at = $2
		WHERE id = $3 AND is_locked = FALSE`,
		at, r.now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var locked bool
	if err := r.pool.QueryRow(ctx, `SELECT is_locked FROM users WHERE id = $1`, id).Scan(&locked); err != nil {
		return database.MapPostgresError(err)
	}
	return models.ErrAccountLocked
}

// SetLocked sets the lock flag. Unlocking also clears the counter in the
// same statement.
func (r *UserRepository) SetLocked(ctx context.Context, id string, locked bool) error {
	if locked {
		return r.exec(ctx, `UPDATE users SET is_locked = TRUE, updated_at = $1 WHERE id = $2`, r.now(), id)
	}
	return r.exec(ctx,
		`UPDATE users SET is_locked = FALSE, failed_login_attempts = 0, updated_at = $1 WHERE id = $2`,
		r.now(), id)
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, hash, r.now(), id)
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE users SET email_verified = TRUE, updated_at = $1 WHERE id = $2`, r.now(), id)
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	return r.exec(ctx, `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`, string(role), r.now(), id)
}

func (r *UserRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// prepareNewUser fills the server-owned fields of a user about to be inserted.
func prepareNewUser(user *models.User, now time.Time) {
	user.ID = uuid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.FailedLoginAttempts = 0
	user.IsLocked = false
	user.LastLoginAt = nil
	if user.Role == "" {
		user.Role = models.RoleAnonymous
	}
}
