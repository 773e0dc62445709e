package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	"github.com/ErlanBelekov/identity-service/internal/repository"
	"github.com/google/uuid"
)

var _ repository.UserRepository = (*UserRepository)(nil)

// UserRepository keeps users in process memory. A single mutex makes every
// method atomic.
type UserRepository struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	byEmail map[string]string
	now     func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[string]*domain.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *UserRepository) Ping(_ context.Context) error { return nil }

func (r *UserRepository) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return nil, domain.ErrEmailTaken
	}

	now := r.now().UTC()
	u := cloneUser(user)
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now
	r.users[u.ID] = u
	r.byEmail[u.Email] = u.ID
	return cloneUser(u), nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(r.users[id]), nil
}

func (r *UserRepository) SetOTP(_ context.Context, userID, code string, issuedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.OTPCode = &code
	u.OTPIssuedAt = &issuedAt
	u.UpdatedAt = r.now().UTC()
	return nil
}

func (r *UserRepository) ConsumeVerificationOTP(_ context.Context, userID, code string, issuedAfter time.Time) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok || u.Verified || !holdsCode(u, code, issuedAfter) {
		return nil, domain.ErrOTPMismatch
	}
	u.Verified = true
	u.OTPCode = nil
	u.OTPIssuedAt = nil
	u.UpdatedAt = r.now().UTC()
	return cloneUser(u), nil
}

func (r *UserRepository) ResetPassword(_ context.Context, userID, code, passwordHash string, issuedAfter time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok || !holdsCode(u, code, issuedAfter) {
		return domain.ErrOTPMismatch
	}
	u.PasswordHash = passwordHash
	u.OTPCode = nil
	u.OTPIssuedAt = nil
	u.UpdatedAt = r.now().UTC()
	return nil
}

func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	delete(r.byEmail, u.Email)
	delete(r.users, id)
	return nil
}

func (r *UserRepository) ClearExpiredOTPs(_ context.Context, issuedBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	cleared := 0
	for _, u := range r.users {
		if u.OTPIssuedAt != nil && u.OTPIssuedAt.Before(issuedBefore) {
			u.OTPCode = nil
			u.OTPIssuedAt = nil
			u.UpdatedAt = now
			cleared++
		}
	}
	return cleared, nil
}

// holdsCode matches the postgres predicate: otp_code = code AND otp_issued_at >= issuedAfter.
func holdsCode(u *domain.User, code string, issuedAfter time.Time) bool {
	if u.OTPCode == nil || *u.OTPCode != code || u.OTPIssuedAt == nil {
		return false
	}
	return !u.OTPIssuedAt.Before(issuedAfter)
}

// cloneUser copies u including the OTP pointers so callers never share
// state with the map.
func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.OTPCode != nil {
		code := *u.OTPCode
		c.OTPCode = &code
	}
	if u.OTPIssuedAt != nil {
		at := *u.OTPIssuedAt
		c.OTPIssuedAt = &at
	}
	return &c
}
