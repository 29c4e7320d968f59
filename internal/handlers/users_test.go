package handlers_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/usermgmt/internal/handlers"
	"github.com/BradenHooton/usermgmt/internal/models"
	"github.com/BradenHooton/usermgmt/internal/services"
	pkghttp "github.com/BradenHooton/usermgmt/pkg/http"
)

func sampleUser(id string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:        id,
		Email:     id + "@example.com",
		Nickname:  id,
		Role:      models.RoleAuthenticated,
		IsLocked:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newUserHandler(svc handlers.UserService) *handlers.UserHandler {
	return handlers.NewUserHandler(svc, handlers.DiscardLogger())
}

func TestMe(t *testing.T) {
	mockService := &handlers.MockUserService{
		GetUserFunc: func(ctx context.Context, id string) (*models.User, error) {
			return sampleUser(id), nil
		},
	}

	req := handlers.WithAuthContext(httptest.NewRequest("GET", "/api/users/me", nil), "user123", models.RoleAnonymous)
	w := httptest.NewRecorder()
	newUserHandler(mockService).Me(w, req)

	var resp handlers.UserResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "user123", resp.ID)
	assert.Equal(t, "user123@example.com", resp.Email)

	w = httptest.NewRecorder()
	newUserHandler(mockService).Me(w, httptest.NewRequest("GET", "/api/users/me", nil))
	handlers.AssertErrorResponse(t, w, 401, pkghttp.CodeUnauthorized)
}

func TestGetUser_Access(t *testing.T) {
	mockService := &handlers.MockUserService{
		GetUserFunc: func(ctx context.Context, id string) (*models.User, error) {
			if id == "missing" {
				return nil, models.ErrNotFound
			}
			return sampleUser(id), nil
		},
	}
	h := newUserHandler(mockService)

	tests := []struct {
		name     string
		callerID string
		role     models.Role
		target   string
		status   int
	}{
		{"self", "user123", models.RoleAuthenticated, "user123", 200},
		{"self while anonymous", "user123", models.RoleAnonymous, "user123", 200},
		{"other user", "user123", models.RoleAuthenticated, "user456", 403},
		{"manager", "mgr", models.RoleManager, "user456", 200},
		{"admin", "admin", models.RoleAdmin, "user456", 200},
		{"missing as admin", "admin", models.RoleAdmin, "missing", 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/users/"+tt.target, nil)
			req = handlers.WithChiID(handlers.WithAuthContext(req, tt.callerID, tt.role), tt.target)
			w := httptest.NewRecorder()
			h.GetUser(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	t.Run("no claims", func(t *testing.T) {
		req := handlers.WithChiID(httptest.NewRequest("GET", "/api/users/user123", nil), "user123")
		w := httptest.NewRecorder()
		h.GetUser(w, req)
		handlers.AssertErrorResponse(t, w, 401, pkghttp.CodeUnauthorized)
	})
}

func TestListUsers(t *testing.T) {
	var gotPage, gotSize int
	mockService := &handlers.MockUserService{
		ListUsersFunc: func(ctx context.Context, page, size int) (*services.UserPage, error) {
			gotPage, gotSize = page, size
			return &services.UserPage{
				Items: []*models.User{sampleUser("a"), sampleUser("b")},
				Total: 12,
				Page:  page,
				Size:  size,
			}, nil
		},
	}
	h := newUserHandler(mockService)

	w := httptest.NewRecorder()
	h.ListUsers(w, httptest.NewRequest("GET", "/api/users?page=2&size=2", nil))

	var resp handlers.ListUsersResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, 2, gotPage)
	assert.Equal(t, 2, gotSize)
	assert.Equal(t, 12, resp.Total)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "a", resp.Items[0].ID)

	w = httptest.NewRecorder()
	h.ListUsers(w, httptest.NewRequest("GET", "/api/users", nil))
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, 1, gotPage)
	assert.Equal(t, services.DefaultPageSize, gotSize)

	for _, query := range []string{"page=abc", "size=1.5"} {
		w := httptest.NewRecorder()
		h.ListUsers(w, httptest.NewRequest("GET", "/api/users?"+query, nil))
		handlers.AssertErrorResponse(t, w, 400, pkghttp.CodeBadRequest)
	}
}

func TestUpdateUser(t *testing.T) {
	var got models.ProfileUpdate
	mockService := &handlers.MockUserService{
		UpdateProfileFunc: func(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
			got = update
			u := sampleUser(id)
			update.Apply(u)
			return u, nil
		},
	}
	h := newUserHandler(mockService)

	req := handlers.NewTestRequest(t, "PUT", "/api/users/user123", map[string]string{"bio": "Gopher", "first_name": "Ada"})
	req = handlers.WithChiID(handlers.WithAuthContext(req, "user123", models.RoleAuthenticated), "user123")
	w := httptest.NewRecorder()
	h.UpdateUser(w, req)

	var resp handlers.UserResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "Gopher", resp.Bio)
	assert.Equal(t, "Ada", resp.FirstName)
	require.NotNil(t, got.Bio)
	assert.Nil(t, got.Email)
	assert.Nil(t, got.Nickname)
}

func TestUpdateUser_Errors(t *testing.T) {
	tests := []struct {
		name   string
		caller string
		body   string
		svcErr error
		status int
		code   string
	}{
		{"other user", "user456", `{"bio":"x"}`, nil, 403, pkghttp.CodeForbidden},
		{"lockout fields are not accepted", "user123", `{"failed_login_attempts":0}`, nil, 400, pkghttp.CodeBadRequest},
		{"invalid email", "user123", `{"email":"nope"}`, nil, 422, pkghttp.CodeValidation},
		{"conflict", "user123", `{"nickname":"taken"}`, models.ErrConflict, 409, pkghttp.CodeConflict},
		{"service validation", "user123", `{}`, models.ErrBadRequest, 400, pkghttp.CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &handlers.MockUserService{
				UpdateProfileFunc: func(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
					return nil, tt.svcErr
				},
			}
			req := httptest.NewRequest("PUT", "/api/users/user123", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req = handlers.WithChiID(handlers.WithAuthContext(req, tt.caller, models.RoleAuthenticated), "user123")
			w := httptest.NewRecorder()
			newUserHandler(mockService).UpdateUser(w, req)

			handlers.AssertErrorResponse(t, w, tt.status, tt.code)
		})
	}
}

func TestDeleteUser(t *testing.T) {
	var gotID, gotActor string
	mockService := &handlers.MockUserService{
		DeleteUserFunc: func(ctx context.Context, id, actorID string) error {
			gotID, gotActor = id, actorID
			return nil
		},
	}

	req := handlers.WithChiID(handlers.WithAuthContext(httptest.NewRequest("DELETE", "/api/users/user123", nil), "admin", models.RoleAdmin), "user123")
	w := httptest.NewRecorder()
	newUserHandler(mockService).DeleteUser(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "user123", gotID)
	assert.Equal(t, "admin", gotActor)

	mockService.DeleteUserFunc = func(ctx context.Context, id, actorID string) error { return models.ErrNotFound }
	w = httptest.NewRecorder()
	newUserHandler(mockService).DeleteUser(w, req)
	handlers.AssertErrorResponse(t, w, 404, pkghttp.CodeNotFound)
}

func TestUnlockUser(t *testing.T) {
	mockService := &handlers.MockUserService{
		UnlockAccountFunc: func(ctx context.Context, id, actorID string) (*models.User, error) {
			return sampleUser(id), nil
		},
	}

	req := handlers.WithChiID(handlers.WithAuthContext(httptest.NewRequest("POST", "/api/users/user123/unlock", nil), "mgr", models.RoleManager), "user123")
	w := httptest.NewRecorder()
	newUserHandler(mockService).UnlockUser(w, req)

	var resp handlers.UserResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.False(t, resp.IsLocked)
}

func TestChangeRole(t *testing.T) {
	var gotRole models.Role
	mockService := &handlers.MockUserService{
		ChangeRoleFunc: func(ctx context.Context, id string, role models.Role, actorID string) (*models.User, error) {
			gotRole = role
			u := sampleUser(id)
			u.Role = role
			return u, nil
		},
	}
	h := newUserHandler(mockService)

	req := handlers.NewTestRequest(t, "PUT", "/api/users/user123/role", handlers.ChangeRoleRequest{Role: "MANAGER"})
	req = handlers.WithChiID(handlers.WithAuthContext(req, "admin", models.RoleAdmin), "user123")
	w := httptest.NewRecorder()
	h.ChangeRole(w, req)

	var resp handlers.UserResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, models.RoleManager, gotRole)
	assert.Equal(t, "MANAGER", resp.Role)

	req = handlers.NewTestRequest(t, "PUT", "/api/users/user123/role", handlers.ChangeRoleRequest{Role: "ROOT"})
	req = handlers.WithChiID(handlers.WithAuthContext(req, "admin", models.RoleAdmin), "user123")
	w = httptest.NewRecorder()
	h.ChangeRole(w, req)
	handlers.AssertErrorResponse(t, w, 422, pkghttp.CodeValidation)

	req = handlers.NewTestRequest(t, "PUT", "/api/users/admin/role", handlers.ChangeRoleRequest{Role: "ANONYMOUS"})
	req = handlers.WithChiID(handlers.WithAuthContext(req, "admin", models.RoleAdmin), "admin")
	w = httptest.NewRecorder()
	h.ChangeRole(w, req)
	handlers.AssertErrorResponse(t, w, 403, pkghttp.CodeForbidden)
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.NewHealthHandler(handlers.MockPinger{}, handlers.DiscardLogger()).Health(w, httptest.NewRequest("GET", "/health", nil))

	var resp handlers.HealthResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "ok", resp.Status)

	w = httptest.NewRecorder()
	handlers.NewHealthHandler(handlers.MockPinger{Err: context.DeadlineExceeded}, handlers.DiscardLogger()).Health(w, httptest.NewRequest("GET", "/health", nil))
	handlers.AssertJSONResponse(t, w, 503, &resp)
	assert.Equal(t, "down", resp.Storage)
}
