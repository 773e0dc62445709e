package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/domain"
)

// UserRepository is the credential store. Implementations must make Create
// atomic with respect to email uniqueness and the two Consume/Reset methods
// atomic with respect to the stored code.
type UserRepository interface {
	// Create persists a new user and returns it with ID and timestamps set.
	// Returns domain.ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	// SetOTP overwrites the pending code, invalidating any previous one.
	SetOTP(ctx context.Context, userID, code string, issuedAt time.Time) error

	// ConsumeVerificationOTP marks the user verified and clears the code, but only
	// if the row still holds code and it was issued at or after issuedAfter.
	// Returns domain.ErrOTPMismatch otherwise.
	ConsumeVerificationOTP(ctx context.Context, userID, code string, issuedAfter time.Time) (*domain.User, error)

	// ResetPassword replaces the password hash and clears the code, under the
	// same conditions as ConsumeVerificationOTP.
	ResetPassword(ctx context.Context, userID, code, passwordHash string, issuedAfter time.Time) error

	Delete(ctx context.Context, id string) error

	// ClearExpiredOTPs removes codes issued before the cutoff and returns how many were cleared.
	ClearExpiredOTPs(ctx context.Context, issuedBefore time.Time) (int, error)
}
