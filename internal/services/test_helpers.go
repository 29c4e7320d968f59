package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/usermgmt/internal/events"
	"github.com/BradenHooton/usermgmt/internal/models"
	pkgauth "github.com/BradenHooton/usermgmt/pkg/auth"
	pkglogger "github.com/BradenHooton/usermgmt/pkg/logger"
)

// MockUserRepository implements UserRepository for testing. Unset functions
// behave like an empty store.
type MockUserRepository struct {
	GetByIDFunc                 func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc              func(ctx context.Context, email string) (*models.User, error)
	ListFunc                    func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CountFunc                   func(ctx context.Context) (int, error)
	CreateFunc                  func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateFunc                  func(ctx context.Context, user *models.User) (*models.User, error)
	DeleteFunc                  func(ctx context.Context, id string) error
	IncrementFailedAttemptsFunc func(ctx context.Context, id string) (int, error)
	RecordFailedLoginFunc       func(ctx context.Context, id string, lockAt int) (int, bool, error)
	ResetFailedAttemptsFunc     func(ctx context.Context, id string, at time.Time) error
	SetLockedFunc               func(ctx context.Context, id string, locked bool) error
	UpdatePasswordHashFunc      func(ctx context.Context, id, hash string) error
	MarkEmailVerifiedFunc       func(ctx context.Context, id string) error
	UpdateRoleFunc              func(ctx context.Context, id string, role models.Role) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	created := *user
	created.ID = "new-user-id"
	return &created, nil
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, user)
	}
	return user, nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	if m.IncrementFailedAttemptsFunc != nil {
		return m.IncrementFailedAttemptsFunc(ctx, id)
	}
	return 1, nil
}

func (m *MockUserRepository) RecordFailedLogin(ctx context.Context, id string, lockAt int) (int, bool, error) {
	if m.RecordFailedLoginFunc != nil {
		return m.RecordFailedLoginFunc(ctx, id, lockAt)
	}
	return 1, lockAt == 1, nil
}

func (m *MockUserRepository) ResetFailedAttempts(ctx context.Context, id string, at time.Time) error {
	if m.ResetFailedAttemptsFunc != nil {
		return m.ResetFailedAttemptsFunc(ctx, id, at)
	}
	return nil
}

func (m *MockUserRepository) SetLocked(ctx context.Context, id string, locked bool) error {
	if m.SetLockedFunc != nil {
		return m.SetLockedFunc(ctx, id, locked)
	}
	return nil
}

func (m *MockUserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, id, hash)
	}
	return nil
}

func (m *MockUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	if m.MarkEmailVerifiedFunc != nil {
		return m.MarkEmailVerifiedFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	if m.UpdateRoleFunc != nil {
		return m.UpdateRoleFunc(ctx, id, role)
	}
	return nil
}

// countingHasher wraps a real hasher and counts Verify calls. duringVerify,
// when set, runs inside Verify before the comparison.
type countingHasher struct {
	pkgauth.Hasher
	verifies     atomic.Int64
	hashes       atomic.Int64
	failWith     error
	duringVerify func()
}

func newCountingHasher() *countingHasher {
	return &countingHasher{
		Hasher: pkgauth.NewArgon2Hasher(pkgauth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32}),
	}
}

func (h *countingHasher) Hash(password string) (string, error) {
	h.hashes.Add(1)
	return h.Hasher.Hash(password)
}

func (h *countingHasher) Verify(password, encoded string) (bool, error) {
	h.verifies.Add(1)
	if h.duringVerify != nil {
		h.duringVerify()
	}
	if h.failWith != nil {
		return false, h.failWith
	}
	return h.Hasher.Verify(password, encoded)
}

// fakeTokens issues predictable tokens.
type fakeTokens struct {
	mu       sync.Mutex
	issued   int
	err      error
	claims   map[string]*models.TokenClaims
	verifyTo time.Time
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{claims: make(map[string]*models.TokenClaims)}
}

func (f *fakeTokens) IssueAccessToken(accountID string, role models.Role) (*models.AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.issued++
	return &models.AccessToken{
		Token:     "access-" + accountID,
		TokenType: "bearer",
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}, nil
}

func (f *fakeTokens) IssueVerificationToken(accountID, email string) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	token := "verify-" + accountID
	claims := &models.TokenClaims{Type: models.TokenTypeEmailVerification, Email: email}
	claims.Subject = accountID
	f.claims[token] = claims
	f.verifyTo = time.Now().Add(24 * time.Hour)
	return token, f.verifyTo, nil
}

func (f *fakeTokens) ValidateVerificationToken(token string) (*models.TokenClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.claims[token]
	if !ok {
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}

// MockMailer records sent verification emails.
type MockMailer struct {
	mu    sync.Mutex
	Sent  []SentEmail
	Error error
}

type SentEmail struct {
	To        string
	Link      string
	ExpiresAt time.Time
}

func (m *MockMailer) SendVerificationEmail(ctx context.Context, to, link string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Error != nil {
		return m.Error
	}
	m.Sent = append(m.Sent, SentEmail{To: to, Link: link, ExpiresAt: expiresAt})
	return nil
}

// RecordingPublisher keeps every published event.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []events.Event
	Error  error
}

func (p *RecordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Error != nil {
		return p.Error
	}
	p.Events = append(p.Events, event)
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		types = append(types, e.Type)
	}
	return types
}

var errStoreDown = errors.New("connection refused")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}
