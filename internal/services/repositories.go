package services

import (
	"context"
	"time"

	"github.com/BradenHooton/usermgmt/internal/models"
)

// AccountRepository is the storage contract of the login path.
//
// IncrementFailedAttempts and RecordFailedLogin must be atomic per account:
// concurrent calls for the same id each add exactly one and each observe a
// distinct result. RecordFailedLogin also sets the lock flag in the same
// write once the new count reaches lockAt. ResetFailedAttempts refuses a
// locked account with models.ErrAccountLocked. SetLocked(false) also clears
// the counter in the same write.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	RecordFailedLogin(ctx context.Context, id string, lockAt int) (count int, locked bool, err error)
	ResetFailedAttempts(ctx context.Context, id string, at time.Time) error
	SetLocked(ctx context.Context, id string, locked bool) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// UserRepository adds account lifecycle and profile management.
type UserRepository interface {
	AccountRepository
	Create(ctx context.Context, user *models.User) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, user *models.User) (*models.User, error)
	Delete(ctx context.Context, id string) error
	MarkEmailVerified(ctx context.Context, id string) error
	UpdateRole(ctx context.Context, id string, role models.Role) error
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	IssueAccessToken(accountID string, role models.Role) (*models.AccessToken, error)
}

// VerificationTokens signs and checks email verification tokens.
type VerificationTokens interface {
	IssueVerificationToken(accountID, email string) (string, time.Time, error)
	ValidateVerificationToken(token string) (*models.TokenClaims, error)
}
