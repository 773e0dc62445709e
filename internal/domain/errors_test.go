package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/domain"
)

func TestKindOf_WrappedError(t *testing.T) {
	err := fmt.Errorf("login: %w", domain.Unauthorized("Incorrect email or password.", nil))
	if got := domain.KindOf(err); got != domain.KindUnauthorized {
		t.Errorf("kind = %v, want unauthorized", got)
	}
}

func TestKindOf_UntypedIsInternal(t *testing.T) {
	if got := domain.KindOf(errors.New("boom")); got != domain.KindInternal {
		t.Errorf("kind = %v, want internal", got)
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	err := domain.Unauthorized("Invalid or expired token", domain.ErrTokenExpired)
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Error("errors.Is did not find the cause")
	}
	if err.Error() != "Invalid or expired token: token has expired" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestUser_OTPExpired(t *testing.T) {
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	code := "1234"
	u := &domain.User{OTPCode: &code, OTPIssuedAt: &issued}

	if u.OTPExpired(issued.Add(domain.OTPValidity)) {
		t.Error("code at the window boundary should still be valid")
	}
	if !u.OTPExpired(issued.Add(domain.OTPValidity + time.Second)) {
		t.Error("code past the window should be expired")
	}
	if !(&domain.User{}).OTPExpired(issued) {
		t.Error("user without a code should count as expired")
	}
}
