package domain

import (
	"errors"
	"time"
)

const (
	// OTPValidity is how long an issued code is accepted, measured from OTPIssuedAt.
	OTPValidity = 10 * time.Minute
	// TokenTTL is the lifetime of a bearer token.
	TokenTTL = time.Hour
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrOTPMismatch  = errors.New("otp does not match")
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

type User struct {
	ID           string
	FullName     string
	Email        string
	PasswordHash string
	Verified     bool

	// OTPCode and OTPIssuedAt are set and cleared together.
	OTPCode     *string
	OTPIssuedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasOTP reports whether a code is stored, regardless of its age.
func (u *User) HasOTP() bool {
	return u.OTPCode != nil && u.OTPIssuedAt != nil
}

// OTPExpired reports whether the stored code is older than the validity window.
// A user without a code is considered expired.
func (u *User) OTPExpired(now time.Time) bool {
	if !u.HasOTP() {
		return true
	}
	return now.After(u.OTPIssuedAt.Add(OTPValidity))
}
