package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/usermgmt/internal/models"
)

// MemoryUserRepository keeps accounts in process memory. Each account has
// its own mutex so that concurrent attempts against one account serialize
// while different accounts proceed in parallel.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*memoryRecord
	byEmail map[string]string
	now     func() time.Time
}

type memoryRecord struct {
	mu   sync.Mutex
	user models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*memoryRecord),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *MemoryUserRepository) record(id string) (*memoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return rec, nil
}

// update runs fn with the record's lock held.
func (r *MemoryUserRepository) update(ctx context.Context, id string, fn func(*models.User)) error {
	return r.mutate(ctx, id, func(u *models.User) error {
		fn(u)
		return nil
	})
}

// mutate is update for changes that may be refused; a refused change leaves
// the record as it was.
func (r *MemoryUserRepository) mutate(ctx context.Context, id string, fn func(*models.User) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrRepositoryUnavailable, err)
	}
	rec, err := r.record(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	next := rec.user
	if err := fn(&next); err != nil {
		return err
	}
	next.UpdatedAt = r.now()
	rec.user = next
	return nil
}

func (r *MemoryUserRepository) snapshot(rec *memoryRecord) *models.User {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	user := rec.user
	if rec.user.LastLoginAt != nil {
		t := *rec.user.LastLoginAt
		user.LastLoginAt = &t
	}
	return &user
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrRepositoryUnavailable, err)
	}
	rec, err := r.record(id)
	if err != nil {
		return nil, err
	}
	return r.snapshot(rec), nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrRepositoryUnavailable, err)
		}
		return nil, models.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	r.mu.RLock()
	records := make([]*memoryRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		records = append(records, rec)
	}
	r.mu.RUnlock()

	users := make([]*models.User, 0, len(records))
	for _, rec := range records {
		users = append(users, r.snapshot(rec))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	if offset >= len(users) {
		return []*models.User{}, nil
	}
	end := offset + limit
	if end > len(users) {
		end = len(users)
	}
	return users[offset:end], nil
}

func (r *MemoryUserRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrRepositoryUnavailable, err)
	}
	prepareNewUser(user, r.now())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return nil, fmt.Errorf("%w: email", models.ErrConflict)
	}
	for _, rec := range r.byID {
		if rec.user.Nickname == user.Nickname {
			return nil, fmt.Errorf("%w: nickname", models.ErrConflict)
		}
	}

	rec := &memoryRecord{user: *user}
	r.byID[user.ID] = rec
	r.byEmail[user.Email] = user.ID

	created := rec.user
	return &created, nil
}

func (r *MemoryUserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	rec, ok := r.byID[user.ID]
	if !ok {
		r.mu.Unlock()
		return nil, models.ErrNotFound
	}
	if ownerID, taken := r.byEmail[user.Email]; taken && ownerID != user.ID {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: email", models.ErrConflict)
	}
	for id, other := range r.byID {
		if id != user.ID && other.user.Nickname == user.Nickname {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: nickname", models.ErrConflict)
		}
	}

	rec.mu.Lock()
	if rec.user.Email != user.Email {
		delete(r.byEmail, rec.user.Email)
		r.byEmail[user.Email] = user.ID
	}
	rec.user.Email = user.Email
	rec.user.Nickname = user.Nickname
	rec.user.FirstName = user.FirstName
	rec.user.LastName = user.LastName
	rec.user.Bio = user.Bio
	rec.user.ProfilePictureURL = user.ProfilePictureURL
	rec.user.LinkedInProfileURL = user.LinkedInProfileURL
	rec.user.GitHubProfileURL = user.GitHubProfileURL
	rec.user.IsProfessional = user.IsProfessional
	rec.user.UpdatedAt = r.now()
	rec.mu.Unlock()
	r.mu.Unlock()

	return r.snapshot(rec), nil
}

func (r *MemoryUserRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	delete(r.byEmail, rec.user.Email)
	delete(r.byID, id)
	return nil
}

func (r *MemoryUserRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	n, _, err := r.RecordFailedLogin(ctx, id, 0)
	return n, err
}

func (r *MemoryUserRepository) RecordFailedLogin(ctx context.Context, id string, lockAt int) (int, bool, error) {
	var (
		n      int
		locked bool
	)
	err := r.update(ctx, id, func(u *models.User) {
		u.FailedLoginAttempts++
		if lockAt > 0 && u.FailedLoginAttempts >= lockAt {
			u.IsLocked = true
		}
		n, locked = u.FailedLoginAttempts, u.IsLocked
	})
	return n, locked, err
}

func (r *MemoryUserRepository) ResetFailedAttempts(ctx context.Context, id string, at time.Time) error {
	return r.mutate(ctx, id, func(u *models.User) error {
		if u.IsLocked {
			return models.ErrAccountLocked
		}
		u.FailedLoginAttempts = 0
		u.LastLoginAt = &at
		return nil
	})
}

func (r *MemoryUserRepository) SetLocked(ctx context.Context, id string, locked bool) error {
	return r.update(ctx, id, func(u *models.User) {
		u.IsLocked = locked
		if !locked {
			u.FailedLoginAttempts = 0
		}
	})
}

func (r *MemoryUserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.update(ctx, id, func(u *models.User) { u.PasswordHash = hash })
}

func (r *MemoryUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.update(ctx, id, func(u *models.User) { u.EmailVerified = true })
}

func (r *MemoryUserRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	return r.update(ctx, id, func(u *models.User) { u.Role = role })
}

func (r *MemoryUserRepository) Ping(ctx context.Context) error {
	return nil
}
