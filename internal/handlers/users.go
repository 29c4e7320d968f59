package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/usermgmt/internal/auth"
	"github.com/BradenHooton/usermgmt/internal/models"
	"github.com/BradenHooton/usermgmt/internal/services"
	pkghttp "github.com/BradenHooton/usermgmt/pkg/http"
)

// UserService defines the interface for user business logic
type UserService interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, page, size int) (*services.UserPage, error)
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id, actorID string) error
	UnlockAccount(ctx context.Context, id, actorID string) (*models.User, error)
	ChangeRole(ctx context.Context, id string, role models.Role, actorID string) (*models.User, error)
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	service UserService
	logger  *slog.Logger
}

func NewUserHandler(service UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

// UpdateUserRequest carries the optional profile fields. Absent fields are
// left unchanged.
type UpdateUserRequest struct {
	Email              *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Nickname           *string `json:"nickname,omitempty" validate:"omitempty,min=3,max=50"`
	FirstName          *string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName           *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Bio                *string `json:"bio,omitempty" validate:"omitempty,max=1000"`
	ProfilePictureURL  *string `json:"profile_picture_url,omitempty" validate:"omitempty,max=2048"`
	LinkedInProfileURL *string `json:"linkedin_profile_url,omitempty" validate:"omitempty,max=2048"`
	GitHubProfileURL   *string `json:"github_profile_url,omitempty" validate:"omitempty,max=2048"`
}

// ChangeRoleRequest is the body of PUT /api/users/{id}/role.
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=ANONYMOUS AUTHENTICATED MANAGER ADMIN"`
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Nickname           string     `json:"nickname"`
	FirstName          string     `json:"first_name,omitempty"`
	LastName           string     `json:"last_name,omitempty"`
	Bio                string     `json:"bio,omitempty"`
	ProfilePictureURL  string     `json:"profile_picture_url,omitempty"`
	LinkedInProfileURL string     `json:"linkedin_profile_url,omitempty"`
	GitHubProfileURL   string     `json:"github_profile_url,omitempty"`
	Role               string     `json:"role"`
	IsProfessional     bool       `json:"is_professional"`
	EmailVerified      bool       `json:"email_verified"`
	IsLocked           bool       `json:"is_locked"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ListUsersResponse is one page of users.
type ListUsersResponse struct {
	Items []*UserResponse `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:                 user.ID,
		Email:              user.Email,
		Nickname:           user.Nickname,
		FirstName:          user.FirstName,
		LastName:           user.LastName,
		Bio:                user.Bio,
		ProfilePictureURL:  user.ProfilePictureURL,
		LinkedInProfileURL: user.LinkedInProfileURL,
		GitHubProfileURL:   user.GitHubProfileURL,
		Role:               user.Role.String(),
		IsProfessional:     user.IsProfessional,
		EmailVerified:      user.EmailVerified,
		IsLocked:           user.IsLocked,
		LastLoginAt:        user.LastLoginAt,
		CreatedAt:          user.CreatedAt,
		UpdatedAt:          user.UpdatedAt,
	}
}

// Me returns the caller's own account.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.AccountID())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, userModelToResponse(user))
}

// ListUsers handles GET /api/users?page=&size=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid page parameter")
		return
	}
	size, err := queryInt(r, "size", services.DefaultPageSize)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid size parameter")
		return
	}

	result, err := h.service.ListUsers(r.Context(), page, size)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := &ListUsersResponse{
		Items: make([]*UserResponse, len(result.Items)),
		Total: result.Total,
		Page:  result.Page,
		Size:  result.Size,
	}
	for i, user := range result.Items {
		resp.Items[i] = userModelToResponse(user)
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// GetUser handles GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if !h.checkUserAccess(w, r, userID) {
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, userModelToResponse(user))
}

// UpdateUser handles PUT /api/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if !h.checkUserAccess(w, r, userID) {
		return
	}

	var req UpdateUserRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeRequestError(w, err)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, models.ProfileUpdate{
		Email:              req.Email,
		Nickname:           req.Nickname,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Bio:                req.Bio,
		ProfilePictureURL:  req.ProfilePictureURL,
		LinkedInProfileURL: req.LinkedInProfileURL,
		GitHubProfileURL:   req.GitHubProfileURL,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, userModelToResponse(user))
}

// DeleteUser handles DELETE /api/users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	if err := h.service.DeleteUser(r.Context(), userID, claims.AccountID()); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnlockUser handles POST /api/users/{id}/unlock
func (h *UserHandler) UnlockUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	user, err := h.service.UnlockAccount(r.Context(), userID, claims.AccountID())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, userModelToResponse(user))
}

// ChangeRole handles PUT /api/users/{id}/role
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}
	// An admin demoting themselves could leave no admin behind.
	if claims.AccountID() == userID {
		pkghttp.WriteForbidden(w, "Cannot change your own role")
		return
	}

	var req ChangeRoleRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeRequestError(w, err)
		return
	}

	user, err := h.service.ChangeRole(r.Context(), userID, models.Role(req.Role), claims.AccountID())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, userModelToResponse(user))
}

// checkUserAccess allows the account owner and staff. It writes the error
// response itself and reports whether the request may proceed.
func (h *UserHandler) checkUserAccess(w http.ResponseWriter, r *http.Request, userID string) bool {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return false
	}
	if claims.AccountID() == userID || claims.Role.IsStaff() {
		return true
	}
	pkghttp.WriteForbidden(w, "Forbidden: you cannot access this resource")
	return false
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
