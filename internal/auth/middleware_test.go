package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/usermgmt/internal/models"
	pkghttp "github.com/BradenHooton/usermgmt/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(t *testing.T, seen **models.TokenClaims) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = GetUserFromContext(r)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tm := newTestTokenManager(t)
	token, err := tm.IssueAccessToken("account-1", models.RoleManager)
	require.NoError(t, err)

	var seen *models.TokenClaims
	handler := AuthMiddleware(tm)(okHandler(t, &seen))

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token.Token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "account-1", seen.AccountID())
	assert.Equal(t, models.RoleManager, seen.Role)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	tm := newTestTokenManager(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AuthMiddleware(tm)(okHandler(t, nil))

			req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "unauthorized", resp.Error)
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role models.Role
		want int
	}{
		{models.RoleAnonymous, http.StatusForbidden},
		{models.RoleAuthenticated, http.StatusForbidden},
		{models.RoleManager, http.StatusOK},
		{models.RoleAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			handler := RequireRole(models.RoleManager, models.RoleAdmin)(okHandler(t, nil))

			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
			req = req.WithContext(WithClaims(req.Context(), &models.TokenClaims{Role: tt.role}))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireRole_NoClaims(t *testing.T) {
	handler := RequireRole(models.RoleAdmin)(okHandler(t, nil))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
