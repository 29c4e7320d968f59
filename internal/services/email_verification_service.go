package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/usermgmt/internal/events"
	"github.com/BradenHooton/usermgmt/internal/models"
	pkglogger "github.com/BradenHooton/usermgmt/pkg/logger"
)

// EmailVerificationService sends and redeems signed verification links.
// Tokens are self-contained, so nothing is stored between the two steps.
type EmailVerificationService struct {
	repo        UserRepository
	tokens      VerificationTokens
	mailer      Mailer
	linkBase    string
	publisher   events.Publisher
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewEmailVerificationService(
	repo UserRepository,
	tokens VerificationTokens,
	mailer Mailer,
	linkBase string,
	publisher events.Publisher,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *EmailVerificationService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &EmailVerificationService{
		repo:        repo,
		tokens:      tokens,
		mailer:      mailer,
		linkBase:    linkBase,
		publisher:   publisher,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// SendVerification mails a verification link for user's current email.
func (s *EmailVerificationService) SendVerification(ctx context.Context, user *models.User) error {
	token, expiresAt, err := s.tokens.IssueVerificationToken(user.ID, user.Email)
	if err != nil {
		return fmt.Errorf("failed to issue verification token: %w", err)
	}

	link, err := s.link(token)
	if err != nil {
		return err
	}

	if err := s.mailer.SendVerificationEmail(ctx, user.Email, link, expiresAt); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	s.logger.Info("verification email queued", slog.String("user_id", user.ID))
	return nil
}

func (s *EmailVerificationService) link(token string) (string, error) {
	u, err := url.Parse(s.linkBase)
	if err != nil {
		return "", fmt.Errorf("invalid verification url base: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyEmail redeems token. The account's email must still match the one
// the token was issued for. Verifying an already verified account succeeds.
// ANONYMOUS accounts are promoted to AUTHENTICATED.
func (s *EmailVerificationService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: verification token is required", models.ErrBadRequest)
	}

	claims, err := s.tokens.ValidateVerificationToken(token)
	if err != nil {
		s.logger.Info("verification token rejected", slog.Any("error", err))
		return nil, err
	}

	user, err := s.repo.GetByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		return nil, internalError(err)
	}

	if !strings.EqualFold(user.Email, claims.Email) {
		s.logger.Info("verification token issued for a previous email", slog.String("user_id", user.ID))
		return nil, models.ErrTokenInvalid
	}

	if user.EmailVerified {
		return user, nil
	}

	if err := s.repo.MarkEmailVerified(ctx, user.ID); err != nil {
		s.logger.Error("failed to mark email verified", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, internalError(err)
	}
	user.EmailVerified = true

	if user.Role == models.RoleAnonymous {
		if err := s.repo.UpdateRole(ctx, user.ID, models.RoleAuthenticated); err != nil {
			s.logger.Error("failed to promote verified account", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, internalError(err)
		}
		user.Role = models.RoleAuthenticated
	}

	s.logger.Info("email verified", slog.String("user_id", user.ID))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventEmailVerified, user.ID, "", nil)

	if err := s.publisher.Publish(ctx, events.Event{
		Type:       events.TypeEmailVerified,
		AccountID:  user.ID,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to publish account event", slog.String("type", events.TypeEmailVerified), slog.Any("error", err))
	}

	return user, nil
}
