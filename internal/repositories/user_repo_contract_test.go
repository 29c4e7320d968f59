package repositories_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/usermgmt/internal/database"
	"github.com/BradenHooton/usermgmt/internal/models"
	"github.com/BradenHooton/usermgmt/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// accountStore is the method set shared by every repository implementation.
type accountStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, user *models.User) (*models.User, error)
	Delete(ctx context.Context, id string) error
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	RecordFailedLogin(ctx context.Context, id string, lockAt int) (int, bool, error)
	ResetFailedAttempts(ctx context.Context, id string, at time.Time) error
	SetLocked(ctx context.Context, id string, locked bool) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	UpdateRole(ctx context.Context, id string, role models.Role) error
	Ping(ctx context.Context) error
}

var (
	_ accountStore = (*repositories.UserRepository)(nil)
	_ accountStore = (*repositories.SQLiteUserRepository)(nil)
	_ accountStore = (*repositories.MemoryUserRepository)(nil)
)

func stores(t *testing.T) map[string]accountStore {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "accounts.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.Migrate(context.Background(), db, database.DialectSQLite)
	require.NoError(t, err)

	return map[string]accountStore{
		"memory": repositories.NewMemoryUserRepository(),
		"sqlite": repositories.NewSQLiteUserRepository(db),
	}
}

func newUser(email, nickname string) *models.User {
	return &models.User{
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$a2V5",
		Nickname:     nickname,
		FirstName:    "Ada",
		// Lockout fields are server-owned and must be ignored on create.
		FailedLoginAttempts: 9,
		IsLocked:            true,
	}
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			created, err := repo.Create(ctx, newUser("ada@example.com", "ada"))
			require.NoError(t, err)
			assert.NotEmpty(t, created.ID)
			assert.Equal(t, models.RoleAnonymous, created.Role)
			assert.Zero(t, created.FailedLoginAttempts)
			assert.False(t, created.IsLocked)
			assert.Nil(t, created.LastLoginAt)

			byEmail, err := repo.GetByEmail(ctx, "ada@example.com")
			require.NoError(t, err)
			assert.Equal(t, created.ID, byEmail.ID)
			assert.Equal(t, "Ada", byEmail.FirstName)

			byID, err := repo.GetByID(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, "ada@example.com", byID.Email)

			_, err = repo.GetByEmail(ctx, "nobody@example.com")
			assert.ErrorIs(t, err, models.ErrNotFound)

			_, err = repo.Create(ctx, newUser("ada@example.com", "ada2"))
			assert.ErrorIs(t, err, models.ErrConflict)

			_, err = repo.Create(ctx, newUser("other@example.com", "ada"))
			assert.ErrorIs(t, err, models.ErrConflict)

			n, err := repo.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestUserRepository_LockoutWrites(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user, err := repo.Create(ctx, newUser("bob@example.com", "bob"))
			require.NoError(t, err)

			for want := 1; want <= 3; want++ {
				got, err := repo.IncrementFailedAttempts(ctx, user.ID)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}

			require.NoError(t, repo.SetLocked(ctx, user.ID, true))
			locked, err := repo.GetByID(ctx, user.ID)
			require.NoError(t, err)
			assert.True(t, locked.IsLocked)
			assert.Equal(t, 3, locked.FailedLoginAttempts, "locking keeps the counter")

			require.NoError(t, repo.SetLocked(ctx, user.ID, false))
			unlocked, err := repo.GetByID(ctx, user.ID)
			require.NoError(t, err)
			assert.False(t, unlocked.IsLocked)
			assert.Zero(t, unlocked.FailedLoginAttempts, "unlocking clears the counter")

			_, err = repo.IncrementFailedAttempts(ctx, user.ID)
			require.NoError(t, err)

			at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, repo.ResetFailedAttempts(ctx, user.ID, at))
			reset, err := repo.GetByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Zero(t, reset.FailedLoginAttempts)
			require.NotNil(t, reset.LastLoginAt)
			assert.True(t, at.Equal(*reset.LastLoginAt))

			_, err = repo.IncrementFailedAttempts(ctx, "missing")
			assert.ErrorIs(t, err, models.ErrNotFound)
			assert.ErrorIs(t, repo.SetLocked(ctx, "missing", true), models.ErrNotFound)
			assert.ErrorIs(t, repo.ResetFailedAttempts(ctx, "missing", at), models.ErrNotFound)
		})
	}
}

func TestUserRepository_RecordFailedLoginLocksAtThreshold(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user, err := repo.Create(ctx, newUser("carol@example.com", "carol"))
			require.NoError(t, err)

			for want := 1; want <= 3; want++ {
				got, locked, err := repo.RecordFailedLogin(ctx, user.ID, 3)
				require.NoError(t, err)
				assert.Equal(t, want, got)
				assert.Equal(t, want == 3, locked)
			}

			stored, err := repo.GetByID(ctx, user.ID)
			require.NoError(t, err)
			assert.True(t, stored.IsLocked)

			// A later failure with a higher threshold does not unlock.
			got, locked, err := repo.RecordFailedLogin(ctx, user.ID, 10)
			require.NoError(t, err)
			assert.Equal(t, 4, got)
			assert.True(t, locked)

			at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			assert.ErrorIs(t, repo.ResetFailedAttempts(ctx, user.ID, at), models.ErrAccountLocked)
			stored, err = repo.GetByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, 4, stored.FailedLoginAttempts, "a refused reset keeps the counter")
			assert.True(t, stored.IsLocked)
			assert.Nil(t, stored.LastLoginAt)

			_, _, err = repo.RecordFailedLogin(ctx, "missing", 3)
			assert.ErrorIs(t, err, models.ErrNotFound)
		})
	}
}

func TestUserRepository_RecordFailedLoginWithoutThreshold(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user, err := repo.Create(ctx, newUser("dave@example.com", "dave"))
			require.NoError(t, err)

			for i := 0; i < 5; i++ {
				_, locked, err := repo.RecordFailedLogin(ctx, user.ID, 0)
				require.NoError(t, err)
				assert.False(t, locked)
			}

			require.NoError(t, repo.ResetFailedAttempts(ctx, user.ID, time.Now()))
			stored, err := repo.GetByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Zero(t, stored.FailedLoginAttempts)
		})
	}
}

func TestUserRepository_ConcurrentIncrementsAreNotLost(t *testing.T) {
	const workers = 40

	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user, err := repo.Create(ctx, newUser("race@example.com", "race"))
			require.NoError(t, err)

			var wg sync.WaitGroup
			start := make(chan struct{})
			results := make([]int, workers)
			errs := make([]error, workers)

			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					results[i], errs[i] = repo.IncrementFailedAttempts(ctx, user.ID)
				}(i)
			}
			close(start)
			wg.Wait()

			seen := make(map[int]bool, workers)
			for i := 0; i < workers; i++ {
				require.NoError(t, errs[i])
				assert.False(t, seen[results[i]], "value %d returned twice", results[i])
				seen[results[i]] = true
			}

			final, err := repo.GetByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, workers, final.FailedLoginAttempts)
		})
	}
}

func TestUserRepository_ProfileAndRole(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user, err := repo.Create(ctx, newUser("carol@example.com", "carol"))
			require.NoError(t, err)
			other, err := repo.Create(ctx, newUser("dave@example.com", "dave"))
			require.NoError(t, err)

			user.Bio = "hello"
			user.Email = "carol@new.example.com"
			user.IsProfessional = true
			updated, err := repo.Update(ctx, user)
			require.NoError(t, err)
			assert.Equal(t, "hello", updated.Bio)
			assert.True(t, updated.IsProfessional)

			_, err = repo.GetByEmail(ctx, "carol@example.com")
			assert.ErrorIs(t, err, models.ErrNotFound)
			_, err = repo.GetByEmail(ctx, "carol@new.example.com")
			require.NoError(t, err)

			other.Nickname = "carol"
			_, err = repo.Update(ctx, other)
			assert.ErrorIs(t, err, models.ErrConflict)

			require.NoError(t, repo.MarkEmailVerified(ctx, user.ID))
			require.NoError(t, repo.UpdateRole(ctx, user.ID, models.RoleManager))
			require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "new-hash"))

			got, err := repo.GetByID(ctx, user.ID)
			require.NoError(t, err)
			assert.True(t, got.EmailVerified)
			assert.Equal(t, models.RoleManager, got.Role)
			assert.Equal(t, "new-hash", got.PasswordHash)

			require.NoError(t, repo.Delete(ctx, other.ID))
			assert.ErrorIs(t, repo.Delete(ctx, other.ID), models.ErrNotFound)
		})
	}
}

func TestUserRepository_ListPaging(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				_, err := repo.Create(ctx, newUser(fmt.Sprintf("u%d@example.com", i), fmt.Sprintf("user_%d", i)))
				require.NoError(t, err)
			}

			first, err := repo.List(ctx, 2, 0)
			require.NoError(t, err)
			assert.Len(t, first, 2)

			last, err := repo.List(ctx, 2, 4)
			require.NoError(t, err)
			assert.Len(t, last, 1)

			none, err := repo.List(ctx, 2, 10)
			require.NoError(t, err)
			assert.Empty(t, none)

			all, err := repo.List(ctx, 10, 0)
			require.NoError(t, err)
			ids := make(map[string]bool)
			for _, u := range all {
				ids[u.ID] = true
			}
			assert.Len(t, ids, 5)
		})
	}
}
