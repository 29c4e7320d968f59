package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/usermgmt/internal/events"
	"github.com/BradenHooton/usermgmt/internal/models"
	"github.com/BradenHooton/usermgmt/internal/repositories"
)

func strPtr(s string) *string { return &s }

func newUserFixture(t *testing.T) (*UserService, *repositories.MemoryUserRepository, *RecordingPublisher) {
	t.Helper()
	repo := repositories.NewMemoryUserRepository()
	publisher := &RecordingPublisher{}
	return NewUserService(repo, publisher, testLogger(), testAuditLogger()), repo, publisher
}

func createUser(t *testing.T, repo UserRepository, email, nickname string) *models.User {
	t.Helper()
	user, err := repo.Create(context.Background(), &models.User{
		Email: email, Nickname: nickname, PasswordHash: "x", Role: models.RoleAuthenticated,
	})
	require.NoError(t, err)
	return user
}

func TestUserService_GetUser(t *testing.T) {
	svc, repo, _ := newUserFixture(t)
	user := createUser(t, repo, testEmail, "alice")

	got, err := svc.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, testEmail, got.Email)

	_, err = svc.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err = svc.GetUserByEmail(context.Background(), " ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestUserService_GetUser_StoreDown(t *testing.T) {
	svc := NewUserService(&MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) { return nil, errStoreDown },
	}, nil, testLogger(), nil)

	_, err := svc.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, models.ErrInternalServer)
	assert.ErrorIs(t, err, models.ErrRepositoryUnavailable)
}

func TestUserService_ListUsers(t *testing.T) {
	svc, repo, _ := newUserFixture(t)
	for i := 0; i < 12; i++ {
		createUser(t, repo, fmt.Sprintf("user%02d@example.com", i), fmt.Sprintf("user%02d", i))
	}

	tests := []struct {
		name      string
		page      int
		size      int
		wantPage  int
		wantSize  int
		wantItems int
	}{
		{"defaults", 0, 0, 1, DefaultPageSize, 10},
		{"second page", 2, 10, 2, 10, 2},
		{"past the end", 5, 10, 5, 10, 0},
		{"size capped", 1, 1000, 1, MaxPageSize, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.ListUsers(context.Background(), tt.page, tt.size)
			require.NoError(t, err)
			assert.Equal(t, 12, page.Total)
			assert.Equal(t, tt.wantPage, page.Page)
			assert.Equal(t, tt.wantSize, page.Size)
			assert.Len(t, page.Items, tt.wantItems)
		})
	}
}

func TestUserService_UpdateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("applies provided fields only", func(t *testing.T) {
		svc, repo, _ := newUserFixture(t)
		user := createUser(t, repo, testEmail, "alice")

		updated, err := svc.UpdateProfile(ctx, user.ID, models.ProfileUpdate{
			FirstName:        strPtr("Alice"),
			GitHubProfileURL: strPtr("https://github.com/alice"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Alice", updated.FirstName)
		assert.Equal(t, "https://github.com/alice", updated.GitHubProfileURL)
		assert.Equal(t, "alice", updated.Nickname)
		assert.Equal(t, testEmail, updated.Email)
	})

	t.Run("normalizes email", func(t *testing.T) {
		svc, repo, _ := newUserFixture(t)
		user := createUser(t, repo, testEmail, "alice")

		updated, err := svc.UpdateProfile(ctx, user.ID, models.ProfileUpdate{Email: strPtr(" New@Example.com ")})
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", updated.Email)

		_, err = repo.GetByEmail(ctx, "new@example.com")
		assert.NoError(t, err)
	})

	t.Run("does not touch lockout state", func(t *testing.T) {
		svc, repo, _ := newUserFixture(t)
		user := createUser(t, repo, testEmail, "alice")
		_, err := repo.IncrementFailedAttempts(ctx, user.ID)
		require.NoError(t, err)
		require.NoError(t, repo.SetLocked(ctx, user.ID, true))

		updated, err := svc.UpdateProfile(ctx, user.ID, models.ProfileUpdate{Bio: strPtr("hello")})
		require.NoError(t, err)
		assert.True(t, updated.IsLocked)
		assert.Equal(t, 1, updated.FailedLoginAttempts)
	})

	t.Run("conflict", func(t *testing.T) {
		svc, repo, _ := newUserFixture(t)
		createUser(t, repo, "bob@example.com", "bob")
		user := createUser(t, repo, testEmail, "alice")

		_, err := svc.UpdateProfile(ctx, user.ID, models.ProfileUpdate{Nickname: strPtr("bob")})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("validation", func(t *testing.T) {
		svc, repo, _ := newUserFixture(t)
		user := createUser(t, repo, testEmail, "alice")

		for name, update := range map[string]models.ProfileUpdate{
			"empty":        {},
			"nickname":     {Nickname: strPtr("x")},
			"picture url":  {ProfilePictureURL: strPtr("ftp://example.com/me.png")},
			"blank email":  {Email: strPtr("  ")},
			"linkedin url": {LinkedInProfileURL: strPtr("linkedin")},
		} {
			_, err := svc.UpdateProfile(ctx, user.ID, update)
			assert.ErrorIs(t, err, models.ErrBadRequest, name)
		}
	})

	t.Run("missing account", func(t *testing.T) {
		svc, _, _ := newUserFixture(t)
		_, err := svc.UpdateProfile(ctx, "missing", models.ProfileUpdate{Bio: strPtr("x")})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestUserService_UnlockAccount(t *testing.T) {
	ctx := context.Background()
	svc, repo, publisher := newUserFixture(t)
	user := createUser(t, repo, testEmail, "alice")

	for i := 0; i < 5; i++ {
		_, err := repo.IncrementFailedAttempts(ctx, user.ID)
		require.NoError(t, err)
	}
	require.NoError(t, repo.SetLocked(ctx, user.ID, true))

	unlocked, err := svc.UnlockAccount(ctx, user.ID, "admin-id")
	require.NoError(t, err)
	assert.False(t, unlocked.IsLocked)
	assert.Equal(t, 0, unlocked.FailedLoginAttempts)
	assert.Equal(t, []string{events.TypeAccountUnlocked}, publisher.Types())

	_, err = svc.UnlockAccount(ctx, "missing", "admin-id")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserService_ChangeRole(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newUserFixture(t)
	user := createUser(t, repo, testEmail, "alice")

	updated, err := svc.ChangeRole(ctx, user.ID, models.RoleManager, "admin-id")
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, updated.Role)

	_, err = svc.ChangeRole(ctx, user.ID, models.Role("ROOT"), "admin-id")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.ChangeRole(ctx, "missing", models.RoleAdmin, "admin-id")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserService_DeleteUser(t *testing.T) {
	ctx := context.Background()
	svc, repo, publisher := newUserFixture(t)
	user := createUser(t, repo, testEmail, "alice")

	require.NoError(t, svc.DeleteUser(ctx, user.ID, user.ID))
	assert.Equal(t, []string{events.TypeAccountDeleted}, publisher.Types())

	_, err := svc.GetUser(ctx, user.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, svc.DeleteUser(ctx, user.ID, user.ID), models.ErrNotFound)
}

func TestUserService_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemoryUserRepository()
	svc := NewUserService(repo, &RecordingPublisher{Error: errStoreDown}, testLogger(), nil)
	user := createUser(t, repo, testEmail, "alice")

	assert.NoError(t, svc.DeleteUser(ctx, user.ID, "admin-id"))
}
