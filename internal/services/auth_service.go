package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/usermgmt/internal/auth"
	"github.com/BradenHooton/usermgmt/internal/events"
	"github.com/BradenHooton/usermgmt/internal/lockout"
	"github.com/BradenHooton/usermgmt/internal/models"
	pkgauth "github.com/BradenHooton/usermgmt/pkg/auth"
	pkglogger "github.com/BradenHooton/usermgmt/pkg/logger"
)

// dummyPassword is hashed once at startup; unknown emails are verified
// against the result so they cost the same as a wrong password.
const dummyPassword = "timing-parity-placeholder-Aa1!"

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken *models.AccessToken
	User        *models.User
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Email              string
	Password           string
	Nickname           string
	FirstName          string
	LastName           string
	Bio                string
	ProfilePictureURL  string
	LinkedInProfileURL string
	GitHubProfileURL   string
	IsProfessional     bool
}

// VerificationSender delivers the verification message for a new account.
type VerificationSender interface {
	SendVerification(ctx context.Context, user *models.User) error
}

// AuthService authenticates accounts and enforces lockout.
type AuthService struct {
	repo        UserRepository
	hasher      pkgauth.Hasher
	tokens      TokenIssuer
	policy      lockout.Policy
	timing      *auth.TimingDelay
	verifier    VerificationSender
	nicknames   NicknameGenerator
	publisher   events.Publisher
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	env         string
	dummyHash   string
	now         func() time.Time
}

// NewAuthService creates an AuthService. Optional collaborators are attached
// with the With* methods before the service is shared.
func NewAuthService(
	repo UserRepository,
	hasher pkgauth.Hasher,
	tokens TokenIssuer,
	policy lockout.Policy,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) (*AuthService, error) {
	if policy.Threshold() <= 0 {
		return nil, errors.New("lockout policy is not configured")
	}

	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &AuthService{
		repo:        repo,
		hasher:      hasher,
		tokens:      tokens,
		policy:      policy,
		nicknames:   NewNicknameGenerator(),
		publisher:   events.NoopPublisher{},
		logger:      logger,
		auditLogger: auditLogger,
		dummyHash:   dummyHash,
		now:         time.Now,
	}, nil
}

func (s *AuthService) WithTimingDelay(td *auth.TimingDelay) *AuthService {
	s.timing = td
	return s
}

func (s *AuthService) WithVerification(v VerificationSender) *AuthService {
	s.verifier = v
	return s
}

func (s *AuthService) WithNicknames(g NicknameGenerator) *AuthService {
	s.nicknames = g
	return s
}

// WithEnvironment controls log redaction; identifiers are only logged in
// clear in "development".
func (s *AuthService) WithEnvironment(env string) *AuthService {
	s.env = env
	return s
}

func (s *AuthService) WithPublisher(p events.Publisher) *AuthService {
	if p != nil {
		s.publisher = p
	}
	return s
}

// NormalizeEmail is the canonical form used for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login authenticates email/password.
//
// Errors, in the order the checks run:
//   - ErrAccountNotFound: no account with that email
//   - ErrAccountLocked: the account is locked; the password is not checked
//   - ErrInvalidCredentials: wrong password; the failure is recorded and the
//     account locked when the counter reaches the threshold
//   - ErrInternalServer wrapping ErrRepositoryUnavailable or ErrHashingFailure
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (*LoginResult, error) {
	start := time.Now()

	email = NormalizeEmail(email)
	if email == "" {
		s.pad(ctx, start)
		s.auditLogger.LogLoginFailure(ctx, "", "", clientIP, pkglogger.ReasonInvalidCredentials)
		return nil, models.ErrInvalidCredentials
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.rejectUnknown(ctx, email, password, clientIP, start)
		}
		s.logger.Error("failed to load account", slog.Any("error", err))
		return nil, internalError(err)
	}

	if s.policy.Current(user.IsLocked, user.FailedLoginAttempts) == lockout.Locked {
		return nil, s.rejectLocked(ctx, user, clientIP)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("failed to verify password", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", models.ErrInternalServer, models.ErrHashingFailure)
	}
	if !ok {
		return nil, s.recordFailure(ctx, user, clientIP, start)
	}

	return s.completeLogin(ctx, user, password, clientIP)
}

func (s *AuthService) rejectUnknown(ctx context.Context, email, password, clientIP string, start time.Time) error {
	// Result ignored; only the cost matters.
	_, _ = s.hasher.Verify(password, s.dummyHash)
	s.pad(ctx, start)

	s.logger.Info("login rejected: unknown account", pkglogger.RedactedAttr("email", email, s.env))
	s.auditLogger.LogLoginFailure(ctx, "", email, clientIP, pkglogger.ReasonAccountNotFound)
	return models.ErrAccountNotFound
}

func (s *AuthService) rejectLocked(ctx context.Context, user *models.User, clientIP string) error {
	s.logger.Info("login rejected: account locked",
		slog.String("user_id", user.ID),
		pkglogger.RedactedAttr("email", user.Email, s.env),
	)
	s.auditLogger.LogLoginFailure(ctx, user.ID, user.Email, clientIP, pkglogger.ReasonAccountLocked)
	return models.ErrAccountLocked
}

// recordFailure performs the single increment for this attempt. The
// repository sets the lock in the same write once the counter reaches the
// threshold, and the write ignores request cancellation, so a recorded
// failure is never left without its lock.
func (s *AuthService) recordFailure(ctx context.Context, user *models.User, clientIP string, start time.Time) error {
	writeCtx := context.WithoutCancel(ctx)

	count, locked, err := s.repo.RecordFailedLogin(writeCtx, user.ID, s.policy.Threshold())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrAccountNotFound
		}
		s.logger.Error("failed to record failed login", slog.String("user_id", user.ID), slog.Any("error", err))
		return internalError(err)
	}

	// Counter values are unique per attempt, so only one caller sees the
	// threshold itself and reports the transition.
	state := s.policy.AfterFailure(lockout.StateOf(locked), count)
	if state == lockout.Locked && !locked {
		s.logger.Error("failed login crossed the threshold without locking", slog.String("user_id", user.ID))
		return internalError(errors.New("lock flag not set"))
	}
	if state == lockout.Locked && count == s.policy.Threshold() {
		s.logger.Warn("account locked",
			slog.String("user_id", user.ID),
			pkglogger.RedactedAttr("email", user.Email, s.env),
			slog.Int("failed_attempts", count),
		)
		s.auditLogger.LogAccountLocked(ctx, user.ID, user.Email, clientIP, count)
		s.publish(writeCtx, events.TypeAccountLocked, user.ID, map[string]string{
			"failed_attempts": strconv.Itoa(count),
		})
	}

	s.logger.Info("login rejected: invalid credentials",
		slog.String("user_id", user.ID),
		slog.Int("failed_attempts", count),
		slog.Int("remaining", s.policy.Remaining(count)),
	)
	s.auditLogger.LogLoginFailure(ctx, user.ID, user.Email, clientIP, pkglogger.ReasonInvalidCredentials)

	s.pad(ctx, start)
	return models.ErrInvalidCredentials
}

// completeLogin finishes a verified login. The reset is refused when the
// account was locked while the password was being checked, and no token is
// issued then.
func (s *AuthService) completeLogin(ctx context.Context, user *models.User, password, clientIP string) (*LoginResult, error) {
	now := s.now()
	if err := s.repo.ResetFailedAttempts(ctx, user.ID, now); err != nil {
		switch {
		case errors.Is(err, models.ErrAccountLocked):
			return nil, s.rejectLocked(ctx, user, clientIP)
		case errors.Is(err, models.ErrNotFound):
			return nil, models.ErrAccountNotFound
		}
		s.logger.Error("failed to reset failed logins", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, internalError(err)
	}
	user.FailedLoginAttempts = 0
	user.LastLoginAt = &now

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	token, err := s.tokens.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		s.logger.Error("failed to issue access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogLoginSuccess(ctx, user.ID, user.Email, clientIP)

	return &LoginResult{AccessToken: token, User: user}, nil
}

// upgradeHash replaces a legacy or weaker hash. Failure leaves the old hash
// in place.
func (s *AuthService) upgradeHash(ctx context.Context, user *models.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("failed to rehash password", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		s.logger.Warn("failed to store rehashed password", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	user.PasswordHash = hash
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventPasswordRehash, user.ID, "", nil)
}

// Register creates an account. The first account in an empty store becomes
// ADMIN; every other account starts ANONYMOUS until its email is verified.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", models.ErrBadRequest)
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	nickname := strings.TrimSpace(in.Nickname)
	if nickname != "" {
		if err := ValidateNickname(nickname); err != nil {
			return nil, err
		}
	}

	profile := models.ProfileUpdate{
		ProfilePictureURL:  &in.ProfilePictureURL,
		LinkedInProfileURL: &in.LinkedInProfileURL,
		GitHubProfileURL:   &in.GitHubProfileURL,
	}
	if err := validateProfileURLs(profile); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration rejected: email already registered")
		return nil, fmt.Errorf("%w: email already registered", models.ErrConflict)
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing account", slog.Any("error", err))
		return nil, internalError(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", models.ErrInternalServer, models.ErrHashingFailure)
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count accounts", slog.Any("error", err))
		return nil, internalError(err)
	}
	role := models.RoleAnonymous
	if count == 0 {
		role = models.RoleAdmin
	}

	user := &models.User{
		Email:              email,
		PasswordHash:       hash,
		Nickname:           nickname,
		FirstName:          strings.TrimSpace(in.FirstName),
		LastName:           strings.TrimSpace(in.LastName),
		Bio:                in.Bio,
		ProfilePictureURL:  in.ProfilePictureURL,
		LinkedInProfileURL: in.LinkedInProfileURL,
		GitHubProfileURL:   in.GitHubProfileURL,
		IsProfessional:     in.IsProfessional,
		Role:               role,
	}

	created, err := s.createWithNickname(ctx, user, nickname == "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", created.ID), slog.String("role", created.Role.String()))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventUserRegistered, created.ID, "", map[string]string{
		"role": created.Role.String(),
	})
	s.publish(ctx, events.TypeAccountRegistered, created.ID, map[string]string{"role": created.Role.String()})

	if s.verifier != nil {
		if err := s.verifier.SendVerification(ctx, created); err != nil {
			s.logger.Warn("failed to send verification email",
				slog.String("user_id", created.ID), slog.Any("error", err))
		}
	}

	return created, nil
}

// createWithNickname inserts user, retrying with a fresh generated nickname
// when a generated one collides.
func (s *AuthService) createWithNickname(ctx context.Context, user *models.User, generate bool) (*models.User, error) {
	const attempts = 5

	for i := 0; ; i++ {
		if generate {
			user.Nickname = s.nicknames.Generate()
		}

		created, err := s.repo.Create(ctx, user)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			s.logger.Error("failed to create account", slog.Any("error", err))
			return nil, internalError(err)
		}
		if !generate || i == attempts-1 || !strings.Contains(err.Error(), "nickname") {
			return nil, err
		}
	}
}

// BootstrapAdmin creates an ADMIN account when the store is empty. It is a
// no-op otherwise.
func (s *AuthService) BootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return false, internalError(err)
	}
	if count > 0 {
		return false, nil
	}

	created, err := s.Register(ctx, RegisterInput{Email: email, Password: password})
	if err != nil {
		return false, err
	}
	if err := s.repo.MarkEmailVerified(ctx, created.ID); err != nil {
		return true, internalError(err)
	}
	return true, nil
}

func (s *AuthService) pad(ctx context.Context, start time.Time) {
	s.timing.PadFrom(ctx, start)
}

func (s *AuthService) publish(ctx context.Context, eventType, accountID string, attrs map[string]string) {
	err := s.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		AccountID:  accountID,
		OccurredAt: s.now().UTC(),
		Attributes: attrs,
	})
	if err != nil {
		s.logger.Warn("failed to publish account event",
			slog.String("type", eventType),
			slog.String("account_id", accountID),
			slog.Any("error", err))
	}
}

// internalError wraps a storage failure so that both ErrInternalServer and
// ErrRepositoryUnavailable match.
func internalError(err error) error {
	if errors.Is(err, models.ErrRepositoryUnavailable) {
		return fmt.Errorf("%w: %w", models.ErrInternalServer, err)
	}
	return fmt.Errorf("%w: %w: %v", models.ErrInternalServer, models.ErrRepositoryUnavailable, err)
}
