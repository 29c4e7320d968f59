package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/BradenHooton/usermgmt/internal/events"
	"github.com/BradenHooton/usermgmt/internal/models"
	pkglogger "github.com/BradenHooton/usermgmt/pkg/logger"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

var profileURLPattern = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)

// UserPage is one page of ListUsers.
type UserPage struct {
	Items []*models.User
	Total int
	Page  int
	Size  int
}

// UserService manages accounts on behalf of their owners and staff.
type UserService struct {
	repo        UserRepository
	publisher   events.Publisher
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewUserService(repo UserRepository, publisher events.Publisher, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UserService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &UserService{
		repo:        repo,
		publisher:   publisher,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, internalError(err)
	}
	return user, nil
}

// GetUserByEmail looks up an account by its normalized email.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, internalError(err)
	}
	return user, nil
}

// ListUsers returns page (1-based) of size accounts. Out-of-range values
// fall back to the defaults.
func (s *UserService) ListUsers(ctx context.Context, page, size int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count users", slog.Any("error", err))
		return nil, internalError(err)
	}

	users, err := s.repo.List(ctx, size, (page-1)*size)
	if err != nil {
		s.logger.Error("failed to list users", slog.Any("error", err))
		return nil, internalError(err)
	}

	return &UserPage{Items: users, Total: total, Page: page, Size: size}, nil
}

// UpdateProfile applies update to the account. At least one field must be set.
func (s *UserService) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	if update.Empty() {
		return nil, fmt.Errorf("%w: at least one field must be provided for update", models.ErrBadRequest)
	}
	if update.Nickname != nil {
		if err := ValidateNickname(*update.Nickname); err != nil {
			return nil, err
		}
	}
	if err := validateProfileURLs(update); err != nil {
		return nil, err
	}
	if update.Email != nil {
		email := NormalizeEmail(*update.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email cannot be empty", models.ErrBadRequest)
		}
		update.Email = &email
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	update.Apply(user)

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update user", slog.String("user_id", id), slog.Any("error", err))
		return nil, internalError(err)
	}

	s.logger.Info("user profile updated", slog.String("user_id", id))
	return updated, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id, actorID string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete user", slog.String("user_id", id), slog.Any("error", err))
		return internalError(err)
	}

	s.logger.Info("user deleted", slog.String("user_id", id))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventUserDeleted, id, actorID, nil)
	s.publish(ctx, events.TypeAccountDeleted, id, nil)
	return nil
}

// UnlockAccount clears the lock and the failed-attempt counter.
func (s *UserService) UnlockAccount(ctx context.Context, id, actorID string) (*models.User, error) {
	if err := s.repo.SetLocked(ctx, id, false); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to unlock account", slog.String("user_id", id), slog.Any("error", err))
		return nil, internalError(err)
	}

	s.logger.Info("account unlocked", slog.String("user_id", id), slog.String("actor_id", actorID))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventAccountUnlocked, id, actorID, nil)
	s.publish(ctx, events.TypeAccountUnlocked, id, nil)

	return s.GetUser(ctx, id)
}

// ChangeRole assigns role to the account.
func (s *UserService) ChangeRole(ctx context.Context, id string, role models.Role, actorID string) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", models.ErrBadRequest, role)
	}

	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to change role", slog.String("user_id", id), slog.Any("error", err))
		return nil, internalError(err)
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventRoleChanged, id, actorID, map[string]string{"role": role.String()})
	return s.GetUser(ctx, id)
}

func (s *UserService) publish(ctx context.Context, eventType, accountID string, attrs map[string]string) {
	err := s.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		AccountID:  accountID,
		OccurredAt: time.Now().UTC(),
		Attributes: attrs,
	})
	if err != nil {
		s.logger.Warn("failed to publish account event", slog.String("type", eventType), slog.Any("error", err))
	}
}

// validateProfileURLs checks every non-empty URL field of update.
func validateProfileURLs(update models.ProfileUpdate) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"profile_picture_url", update.ProfilePictureURL},
		{"linkedin_profile_url", update.LinkedInProfileURL},
		{"github_profile_url", update.GitHubProfileURL},
	}

	for _, f := range fields {
		if f.value == nil || strings.TrimSpace(*f.value) == "" {
			continue
		}
		if !profileURLPattern.MatchString(*f.value) {
			return fmt.Errorf("%w: %s: invalid URL format", models.ErrBadRequest, f.name)
		}
	}
	return nil
}
