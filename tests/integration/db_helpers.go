//go:build integration

package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/usermgmt/internal/database"
	"github.com/BradenHooton/usermgmt/internal/models"
	"github.com/BradenHooton/usermgmt/internal/repositories"
	"github.com/BradenHooton/usermgmt/pkg/auth"
)

// TestDB manages a PostgreSQL testcontainer and its connection pool.
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase starts PostgreSQL, applies the embedded migrations and
// returns a connected TestDB.
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("usermgmt"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	if err := runMigrations(ctx, connStr); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         database.NewFromPool(pool, nil),
	}, nil
}

// runMigrations applies the embedded postgres migrations through lib/pq.
func runMigrations(ctx context.Context, connStr string) error {
	sqlDB, err := database.OpenPostgresSQL(ctx, connStr)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := database.Migrate(ctx, sqlDB, database.DialectPostgres); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Teardown closes the pool and stops the container.
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation.
func (db *TestDB) CleanupTables(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, "TRUNCATE TABLE users CASCADE"); err != nil {
		return fmt.Errorf("failed to truncate users: %w", err)
	}
	return nil
}

// Repository returns the pgx-backed account repository.
func (db *TestDB) Repository() *repositories.UserRepository {
	return repositories.NewUserRepository(db.DB)
}

// SeedUser inserts an account with a hashed password through the repository.
func (db *TestDB) SeedUser(ctx context.Context, email, password string, role models.Role) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := db.Repository().Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Nickname:     "seed-" + fmt.Sprint(time.Now().UnixNano()),
		Role:         role,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// FailedAttempts reads the stored counter directly.
func (db *TestDB) FailedAttempts(ctx context.Context, id string) (int, bool, error) {
	var (
		attempts int
		locked   bool
	)
	err := db.Pool.QueryRow(ctx,
		"SELECT failed_login_attempts, is_locked FROM users WHERE id = $1", id,
	).Scan(&attempts, &locked)
	return attempts, locked, err
}
