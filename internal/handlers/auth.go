package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/BradenHooton/usermgmt/internal/models"
	"github.com/BradenHooton/usermgmt/internal/services"
	pkghttp "github.com/BradenHooton/usermgmt/pkg/http"
)

// AuthService is the authentication surface used by AuthHandler.
type AuthService interface {
	Login(ctx context.Context, email, password, clientIP string) (*services.LoginResult, error)
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
}

// EmailVerifier redeems verification tokens.
type EmailVerifier interface {
	VerifyEmail(ctx context.Context, token string) (*models.User, error)
}

// AuthHandler handles registration, login and email verification.
type AuthHandler struct {
	service    AuthService
	verifier   EmailVerifier
	ipResolver *pkghttp.ClientIPResolver
	logger     *slog.Logger
}

func NewAuthHandler(service AuthService, verifier EmailVerifier, ipResolver *pkghttp.ClientIPResolver, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:    service,
		verifier:   verifier,
		ipResolver: ipResolver,
		logger:     logger,
	}
}

// LoginRequest is the JSON login body. Username is accepted as an alias of
// Email so that form and JSON clients share one shape.
type LoginRequest struct {
	Email    string `json:"email,omitempty" validate:"required_without=Username,max=254"`
	Username string `json:"username,omitempty" validate:"required_without=Email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

func (r LoginRequest) identifier() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RegisterRequest is the registration body.
type RegisterRequest struct {
	Email              string `json:"email" validate:"required,email,max=254"`
	Password           string `json:"password" validate:"required,min=8,max=128"`
	Nickname           string `json:"nickname,omitempty" validate:"omitempty,min=3,max=50"`
	FirstName          string `json:"first_name,omitempty" validate:"max=100"`
	LastName           string `json:"last_name,omitempty" validate:"max=100"`
	Bio                string `json:"bio,omitempty" validate:"max=1000"`
	ProfilePictureURL  string `json:"profile_picture_url,omitempty" validate:"omitempty,http_url,max=2048"`
	LinkedInProfileURL string `json:"linkedin_profile_url,omitempty" validate:"omitempty,http_url,max=2048"`
	GitHubProfileURL   string `json:"github_profile_url,omitempty" validate:"omitempty,http_url,max=2048"`
	IsProfessional     bool   `json:"is_professional"`
}

// Login handles POST /api/users/login. It accepts a JSON body or an
// urlencoded form with username and password fields.
//
// Unknown accounts and wrong passwords produce the same response.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLogin(w, r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.identifier(), req.Password, h.ipResolver.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteAccountLocked(w, MsgAccountLocked)
		case errors.Is(err, models.ErrAccountNotFound), errors.Is(err, models.ErrInvalidCredentials):
			w.Header().Set("WWW-Authenticate", "Bearer")
			pkghttp.WriteUnauthorized(w, MsgIncorrectCredentials)
		default:
			h.logger.Error("login failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: result.AccessToken.Token,
		TokenType:   result.AccessToken.TokenType,
		ExpiresAt:   result.AccessToken.ExpiresAt,
	})
}

func decodeLogin(w http.ResponseWriter, r *http.Request) (LoginRequest, error) {
	var req LoginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, pkghttp.DefaultMaxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, pkghttp.DefaultMaxBodyBytes)
		if err := r.ParseMultipartForm(pkghttp.DefaultMaxBodyBytes); err != nil {
			return req, err
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	default:
		if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
			return req, err
		}
	}

	return req, ValidateRequest(req)
}

// Register handles POST /api/users/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeRequestError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), services.RegisterInput{
		Email:              req.Email,
		Password:           req.Password,
		Nickname:           req.Nickname,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Bio:                req.Bio,
		ProfilePictureURL:  req.ProfilePictureURL,
		LinkedInProfileURL: req.LinkedInProfileURL,
		GitHubProfileURL:   req.GitHubProfileURL,
		IsProfessional:     req.IsProfessional,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, userModelToResponse(user))
}

// VerifyEmail handles GET /api/users/verify-email?token=...
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.verifier.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenExpired):
			pkghttp.WriteBadRequest(w, "Verification link has expired")
		case errors.Is(err, models.ErrTokenInvalid):
			pkghttp.WriteBadRequest(w, "Invalid verification link")
		default:
			writeServiceError(w, h.logger, err)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, userModelToResponse(user))
}
