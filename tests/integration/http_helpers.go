//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/usermgmt/internal/auth"
	"github.com/BradenHooton/usermgmt/internal/handlers"
	"github.com/BradenHooton/usermgmt/internal/lockout"
	"github.com/BradenHooton/usermgmt/internal/routes"
	"github.com/BradenHooton/usermgmt/internal/services"
	pkgauth "github.com/BradenHooton/usermgmt/pkg/auth"
	pkglogger "github.com/BradenHooton/usermgmt/pkg/logger"
)

// TestServer is the full HTTP stack over a real database with captured mail.
type TestServer struct {
	Server *httptest.Server
	DB     *TestDB
	Mailer *services.MockMailer
}

// NewTestServer wires the router against db with the given lockout threshold.
func NewTestServer(t *testing.T, db *TestDB, threshold int) *TestServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLogger := pkglogger.NewAuditLogger(logger)
	repo := db.Repository()

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret:          "integration-secret-0123456789abcdef",
		AccessTTL:       5 * time.Minute,
		VerificationTTL: time.Hour,
		Issuer:          "usermgmt-integration",
	})
	require.NoError(t, err)

	policy, err := lockout.NewPolicy(threshold)
	require.NoError(t, err)

	mailer := &services.MockMailer{}
	verifier := services.NewEmailVerificationService(repo, tokens, mailer,
		"http://localhost/api/users/verify-email", nil, logger, auditLogger)

	hasher := pkgauth.NewArgon2Hasher(pkgauth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32})
	authService, err := services.NewAuthService(repo, hasher, tokens, policy, logger, auditLogger)
	require.NoError(t, err)
	authService.WithVerification(verifier)

	userService := services.NewUserService(repo, nil, logger, auditLogger)

	router := routes.NewRouter(routes.Dependencies{
		UserHandler:          handlers.NewUserHandler(userService, logger),
		AuthHandler:          handlers.NewAuthHandler(authService, verifier, nil, logger),
		HealthHandler:        handlers.NewHealthHandler(repo, logger),
		Tokens:               tokens,
		Logger:               logger,
		Env:                  "development",
		LoginRateLimitPerMin: 10000,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &TestServer{Server: srv, DB: db, Mailer: mailer}
}

// PostJSON sends body as JSON to path.
func (s *TestServer) PostJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return s.Do(t, http.MethodPost, path, "", body)
}

// Do sends an optionally authenticated JSON request.
func (s *TestServer) Do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.Server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// Login posts credentials to the login endpoint.
func (s *TestServer) Login(t *testing.T, email, password string) *http.Response {
	t.Helper()
	return s.PostJSON(t, "/api/users/login", map[string]string{"email": email, "password": password})
}

// DecodeJSON decodes the response body into T.
func DecodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
