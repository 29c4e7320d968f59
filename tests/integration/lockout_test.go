//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/usermgmt/internal/handlers"
	"github.com/BradenHooton/usermgmt/internal/models"
	pkghttp "github.com/BradenHooton/usermgmt/pkg/http"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up database: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	if err := db.Teardown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to tear down database: %v\n", err)
	}
	os.Exit(code)
}

func cleanDB(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
}

func TestRepository_ConcurrentIncrement(t *testing.T) {
	cleanDB(t)
	ctx := context.Background()

	email, password := TestUser("concurrent")
	user, err := testDB.SeedUser(ctx, email, password, models.RoleAuthenticated)
	require.NoError(t, err)

	repo := testDB.Repository()

	const n = 40
	results := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			count, err := repo.IncrementFailedAttempts(ctx, user.ID)
			assert.NoError(t, err)
			results[i] = count
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, r := range results {
		assert.False(t, seen[r], "count %d observed twice", r)
		seen[r] = true
	}

	attempts, _, err := testDB.FailedAttempts(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, n, attempts)
}

func TestRepository_UnlockClearsCounter(t *testing.T) {
	cleanDB(t)
	ctx := context.Background()

	email, password := TestUser("unlock")
	user, err := testDB.SeedUser(ctx, email, password, models.RoleAuthenticated)
	require.NoError(t, err)

	repo := testDB.Repository()
	for i := 0; i < 3; i++ {
		_, err := repo.IncrementFailedAttempts(ctx, user.ID)
		require.NoError(t, err)
	}
	require.NoError(t, repo.SetLocked(ctx, user.ID, true))
	require.NoError(t, repo.SetLocked(ctx, user.ID, false))

	attempts, locked, err := testDB.FailedAttempts(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, attempts)
	assert.False(t, locked)
}

func TestRepository_RecordFailedLoginLocksInSameWrite(t *testing.T) {
	cleanDB(t)
	ctx := context.Background()

	email, password := TestUser("record")
	user, err := testDB.SeedUser(ctx, email, password, models.RoleAuthenticated)
	require.NoError(t, err)

	repo := testDB.Repository()
	for want := 1; want <= 3; want++ {
		count, locked, err := repo.RecordFailedLogin(ctx, user.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, want, count)
		assert.Equal(t, want == 3, locked)
	}

	assert.ErrorIs(t, repo.ResetFailedAttempts(ctx, user.ID, time.Now()), models.ErrAccountLocked)

	attempts, locked, err := testDB.FailedAttempts(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, locked)
}

func TestLogin_ConcurrentFailuresLockOnce(t *testing.T) {
	cleanDB(t)
	ctx := context.Background()
	srv := NewTestServer(t, testDB, 5)

	email, password := TestUser("burst")
	user, err := testDB.SeedUser(ctx, email, password, models.RoleAuthenticated)
	require.NoError(t, err)

	const n = 20
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i] = srv.Login(t, email, "WrongPassword999!").StatusCode
		}(i)
	}
	wg.Wait()

	for _, status := range statuses {
		assert.Contains(t, []int{http.StatusUnauthorized, http.StatusForbidden}, status)
	}

	attempts, locked, err := testDB.FailedAttempts(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.GreaterOrEqual(t, attempts, 5)
	assert.LessOrEqual(t, attempts, n)

	resp := srv.Login(t, email, password)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLogin_LockoutAndAdminUnlock(t *testing.T) {
	cleanDB(t)
	ctx := context.Background()
	srv := NewTestServer(t, testDB, 3)

	adminEmail, password := TestUser("admin")
	_, err := testDB.SeedUser(ctx, adminEmail, password, models.RoleAdmin)
	require.NoError(t, err)

	email, _ := TestUser("member")
	user, err := testDB.SeedUser(ctx, email, password, models.RoleAuthenticated)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		resp := srv.Login(t, email, "WrongPassword999!")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := DecodeJSON[pkghttp.ErrorResponse](t, resp)
		assert.Equal(t, handlers.MsgIncorrectCredentials, body.Message)
	}

	resp := srv.Login(t, email, password)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, handlers.MsgAccountLocked, DecodeJSON[pkghttp.ErrorResponse](t, resp).Message)

	resp = srv.Login(t, adminEmail, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	adminToken := DecodeJSON[handlers.TokenResponse](t, resp).AccessToken

	resp = srv.Do(t, http.MethodPost, "/api/users/"+user.ID+"/unlock", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.Login(t, email, password)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	attempts, locked, err := testDB.FailedAttempts(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, attempts)
	assert.False(t, locked)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	cleanDB(t)
	srv := NewTestServer(t, testDB, 5)

	email, password := TestUser("dup")
	body := map[string]string{"email": email, "password": password}

	resp := srv.PostJSON(t, "/api/users/register", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "ADMIN", DecodeJSON[handlers.UserResponse](t, resp).Role)

	resp = srv.PostJSON(t, "/api/users/register", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
