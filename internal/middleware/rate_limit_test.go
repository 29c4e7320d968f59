package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/usermgmt/internal/auth"
	"github.com/BradenHooton/usermgmt/internal/models"
	pkghttp "github.com/BradenHooton/usermgmt/pkg/http"
)

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest("POST", "/api/users/login", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimitByIP(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 3})(okHandler)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(h, requestFrom("192.0.2.1:1000")).Code, "request %d", i+1)
	}

	w := serve(h, requestFrom("192.0.2.1:1001"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, pkghttp.CodeRateLimited, body.Error)

	// Other clients have their own budget.
	assert.Equal(t, http.StatusOK, serve(h, requestFrom("192.0.2.2:1000")).Code)
}

func TestRateLimitByIP_TrustedProxy(t *testing.T) {
	resolver, err := pkghttp.NewClientIPResolver([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	h := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1, IPResolver: resolver})(okHandler)

	viaProxy := func(client string) *http.Request {
		req := requestFrom("10.0.0.5:443")
		req.Header.Set("X-Forwarded-For", client)
		return req
	}

	assert.Equal(t, http.StatusOK, serve(h, viaProxy("203.0.113.1")).Code)
	assert.Equal(t, http.StatusOK, serve(h, viaProxy("203.0.113.2")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, viaProxy("203.0.113.1")).Code)
}

func TestRateLimitByAccount(t *testing.T) {
	h := RateLimitByAccount(RateLimitConfig{RequestsPerMinute: 2})(okHandler)

	asAccount := func(id string) *http.Request {
		claims := &models.TokenClaims{Type: models.TokenTypeAccess, Role: models.RoleAuthenticated}
		claims.Subject = id
		req := httptest.NewRequest("GET", "/api/users/me", nil)
		return req.WithContext(auth.WithClaims(req.Context(), claims))
	}

	assert.Equal(t, http.StatusOK, serve(h, asAccount("a")).Code)
	assert.Equal(t, http.StatusOK, serve(h, asAccount("a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, asAccount("a")).Code)
	assert.Equal(t, http.StatusOK, serve(h, asAccount("b")).Code)
}
