package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/usermgmt/internal/auth"
	"github.com/BradenHooton/usermgmt/internal/models"
	"github.com/BradenHooton/usermgmt/internal/services"
	pkghttp "github.com/BradenHooton/usermgmt/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds access token claims for userID with role.
func WithAuthContext(req *http.Request, userID string, role models.Role) *http.Request {
	claims := &models.TokenClaims{Type: models.TokenTypeAccess, Role: role}
	claims.Subject = userID
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

// WithChiRouteContext sets chi URL parameters on r.
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// WithChiID sets the "id" URL parameter.
func WithChiID(r *http.Request, id string) *http.Request {
	return WithChiRouteContext(r, map[string]string{"id": id})
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FormRequest builds an urlencoded POST.
func FormRequest(target string, values map[string]string) *http.Request {
	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// MockAuthService implements AuthService for testing
type MockAuthService struct {
	LoginFunc    func(ctx context.Context, email, password, clientIP string) (*services.LoginResult, error)
	RegisterFunc func(ctx context.Context, in services.RegisterInput) (*models.User, error)
}

func (m *MockAuthService) Login(ctx context.Context, email, password, clientIP string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password, clientIP)
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*models.User, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in)
}

// MockEmailVerifier implements EmailVerifier for testing
type MockEmailVerifier struct {
	VerifyEmailFunc func(ctx context.Context, token string) (*models.User, error)
}

func (m *MockEmailVerifier) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if m.VerifyEmailFunc == nil {
		return nil, models.ErrTokenInvalid
	}
	return m.VerifyEmailFunc(ctx, token)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	GetUserFunc       func(ctx context.Context, id string) (*models.User, error)
	ListUsersFunc     func(ctx context.Context, page, size int) (*services.UserPage, error)
	UpdateProfileFunc func(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error)
	DeleteUserFunc    func(ctx context.Context, id, actorID string) error
	UnlockAccountFunc func(ctx context.Context, id, actorID string) (*models.User, error)
	ChangeRoleFunc    func(ctx context.Context, id string, role models.Role, actorID string) (*models.User, error)
}

func (m *MockUserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	if m.GetUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserFunc(ctx, id)
}

func (m *MockUserService) ListUsers(ctx context.Context, page, size int) (*services.UserPage, error) {
	if m.ListUsersFunc == nil {
		return &services.UserPage{Items: []*models.User{}, Page: page, Size: size}, nil
	}
	return m.ListUsersFunc(ctx, page, size)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	if m.UpdateProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateProfileFunc(ctx, id, update)
}

func (m *MockUserService) DeleteUser(ctx context.Context, id, actorID string) error {
	if m.DeleteUserFunc == nil {
		return nil
	}
	return m.DeleteUserFunc(ctx, id, actorID)
}

func (m *MockUserService) UnlockAccount(ctx context.Context, id, actorID string) (*models.User, error) {
	if m.UnlockAccountFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UnlockAccountFunc(ctx, id, actorID)
}

func (m *MockUserService) ChangeRole(ctx context.Context, id string, role models.Role, actorID string) (*models.User, error) {
	if m.ChangeRoleFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ChangeRoleFunc(ctx, id, role, actorID)
}

// MockPinger implements Pinger for testing
type MockPinger struct {
	Err error
}

func (m MockPinger) Ping(ctx context.Context) error { return m.Err }
