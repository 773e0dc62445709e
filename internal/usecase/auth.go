package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	"github.com/ErlanBelekov/identity-service/internal/email"
	"github.com/ErlanBelekov/identity-service/internal/metrics"
	"github.com/ErlanBelekov/identity-service/internal/password"
	"github.com/ErlanBelekov/identity-service/internal/repository"
	"github.com/go-playground/validator/v10"
)

const defaultCallTimeout = 5 * time.Second

// Client-facing messages. They are part of the HTTP contract.
const (
	msgEmailTaken          = "User with this email already exists"
	msgInvalidOrExpiredOTP = "Invalid OTP or OTP has expired"
	msgOTPExpired          = "OTP has expired"
	msgAlreadyVerified     = "User is already verified"
	msgUserNotExist        = "User does not exist"
	msgBadCredentials      = "Incorrect email or password."
	msgNoUserForEmail      = "There is no user with this email address"
	msgPasswordsMismatch   = "Passwords do not match"
	msgInvalidOTP          = "Invalid OTP"
	msgInvalidToken        = "Invalid or expired token"
	msgEmailFailed         = "Failed to send email"
	msgUnavailable         = "Service temporarily unavailable"
	msgInternal            = "Something went wrong"
)

type passwordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type otpGenerator interface {
	Generate() (string, error)
}

type tokenSigner interface {
	Issue(userID string) (string, error)
	Verify(raw string) (string, error)
}

var validate = validator.New()

type AuthOptions struct {
	// CallTimeout bounds every store and notifier call. Zero means 5s.
	CallTimeout time.Duration
	// Now overrides the clock used for OTP issuance and expiry. Nil means time.Now.
	Now func() time.Time
}

// AuthUsecase owns the credential lifecycle: signup, OTP verification,
// login, password recovery and token checks. It keeps no per-request state;
// all cross-request state lives in the user store.
type AuthUsecase struct {
	users       repository.UserRepository
	email       email.Sender
	hasher      passwordHasher
	otps        otpGenerator
	tokens      tokenSigner
	logger      *slog.Logger
	callTimeout time.Duration
	now         func() time.Time
}

func NewAuthUsecase(
	users repository.UserRepository,
	sender email.Sender,
	hasher passwordHasher,
	otps otpGenerator,
	tokens tokenSigner,
	logger *slog.Logger,
	opts AuthOptions,
) *AuthUsecase {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AuthUsecase{
		users:       users,
		email:       sender,
		hasher:      hasher,
		otps:        otps,
		tokens:      tokens,
		logger:      logger.With("component", "auth_usecase"),
		callTimeout: opts.CallTimeout,
		now:         opts.Now,
	}
}

type SignUpInput struct {
	FullName string
	Email    string
	Password string
}

type SignUpResult struct {
	User  *domain.User
	Token string
	// OTP is the code that was just emailed.
	OTP string
}

type LoginResult struct {
	User  *domain.User
	Token string
}

type ResetPasswordInput struct {
	Email           string
	OTP             string
	NewPassword     string
	ConfirmPassword string
}

// SignUp creates an unverified user, issues a token, stores a fresh OTP and
// emails it. If anything after the insert fails the user is deleted again
// and the original error is returned.
func (u *AuthUsecase) SignUp(ctx context.Context, in SignUpInput) (res *SignUpResult, err error) {
	defer func() { record("signup", err) }()

	addr, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, domain.BadRequest("Full name is required")
	}
	if in.Password == "" {
		return nil, domain.BadRequest("Password is required")
	}

	hash, err := u.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	cctx, cancel := u.callCtx(ctx)
	user, err := u.users.Create(cctx, &domain.User{
		FullName:     fullName,
		Email:        addr,
		PasswordHash: hash,
	})
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, domain.Conflict(msgEmailTaken, err)
		}
		return nil, storeUnavailable("create user", err)
	}

	res, err = u.completeSignUp(ctx, user)
	if err != nil {
		u.rollbackSignUp(ctx, user.ID, err)
		return nil, err
	}
	return res, nil
}

func (u *AuthUsecase) completeSignUp(ctx context.Context, user *domain.User) (*SignUpResult, error) {
	signed, err := u.tokens.Issue(user.ID)
	if err != nil {
		return nil, domain.Internal(msgInternal, fmt.Errorf("issue token: %w", err))
	}

	code, err := u.issueOTP(ctx, user, "verification")
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("Welcome %s!", user.FullName)
	if err := u.send(ctx, user.Email, subject, otpBody("verification", code)); err != nil {
		return nil, err
	}

	return &SignUpResult{User: user, Token: signed, OTP: code}, nil
}

// rollbackSignUp runs on a context detached from the caller so a cancelled
// request still gets its orphaned user removed. Failure is logged only.
func (u *AuthUsecase) rollbackSignUp(ctx context.Context, userID string, cause error) {
	if err := u.DeleteUser(context.WithoutCancel(ctx), userID); err != nil {
		metrics.SignupCompensationsTotal.WithLabelValues("failed").Inc()
		u.logger.ErrorContext(ctx, "signup rollback failed", "user_id", userID, "cause", cause, "error", err)
		return
	}
	metrics.SignupCompensationsTotal.WithLabelValues("deleted").Inc()
	u.logger.WarnContext(ctx, "signup rolled back", "user_id", userID, "cause", cause)
}

// GenerateAndSaveOTP stores a fresh code for the user, invalidating any previous one.
func (u *AuthUsecase) GenerateAndSaveOTP(ctx context.Context, emailAddr string) (code string, err error) {
	defer func() { record("generate_otp", err) }()

	addr := canonicalEmail(emailAddr)
	user, err := u.findByEmail(ctx, addr, fmt.Sprintf("User %s not found", addr))
	if err != nil {
		return "", err
	}
	return u.issueOTP(ctx, user, "verification")
}

// VerifyOTP marks the user verified if code is the one currently stored for
// emailAddr and was issued within domain.OTPValidity.
func (u *AuthUsecase) VerifyOTP(ctx context.Context, emailAddr, code string) (user *domain.User, err error) {
	defer func() { record("verify_otp", err) }()

	cctx, cancel := u.callCtx(ctx)
	user, err = u.users.FindByEmail(cctx, canonicalEmail(emailAddr))
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.Unauthorized(msgInvalidOrExpiredOTP, err)
		}
		return nil, storeUnavailable("find user", err)
	}

	// Checked before the code: a consumed code is cleared, so a replay would
	// otherwise look like an unknown code.
	if user.Verified {
		return nil, domain.Unauthorized(msgAlreadyVerified, nil)
	}
	if !otpMatches(user, code) {
		return nil, domain.Unauthorized(msgInvalidOrExpiredOTP, domain.ErrOTPMismatch)
	}
	if user.OTPExpired(u.now()) {
		return nil, domain.Unauthorized(msgOTPExpired, nil)
	}

	cctx, cancel = u.callCtx(ctx)
	defer cancel()
	verified, err := u.users.ConsumeVerificationOTP(cctx, user.ID, code, u.otpCutoff())
	if err != nil {
		if errors.Is(err, domain.ErrOTPMismatch) {
			return nil, domain.Unauthorized(msgInvalidOrExpiredOTP, err)
		}
		return nil, storeUnavailable("consume otp", err)
	}
	return verified, nil
}

// Login checks the password and issues a fresh token. Unverified users may log in.
func (u *AuthUsecase) Login(ctx context.Context, emailAddr, plain string) (res *LoginResult, err error) {
	defer func() { record("login", err) }()

	user, err := u.findByEmail(ctx, canonicalEmail(emailAddr), msgUserNotExist)
	if err != nil {
		return nil, err
	}
	if !u.hasher.Verify(plain, user.PasswordHash) {
		return nil, domain.Unauthorized(msgBadCredentials, nil)
	}

	signed, err := u.tokens.Issue(user.ID)
	if err != nil {
		return nil, domain.Internal(msgInternal, fmt.Errorf("issue token: %w", err))
	}
	return &LoginResult{User: user, Token: signed}, nil
}

// ForgotPassword stores a fresh code in the user's OTP slot and returns the
// user with OTPCode set. Delivery is up to the caller.
func (u *AuthUsecase) ForgotPassword(ctx context.Context, emailAddr string) (user *domain.User, err error) {
	defer func() { record("forgot_password", err) }()
	return u.forgotPassword(ctx, emailAddr)
}

func (u *AuthUsecase) forgotPassword(ctx context.Context, emailAddr string) (*domain.User, error) {
	user, err := u.findByEmail(ctx, canonicalEmail(emailAddr), msgNoUserForEmail)
	if err != nil {
		return nil, err
	}
	if _, err := u.issueOTP(ctx, user, "password_reset"); err != nil {
		return nil, err
	}
	return user, nil
}

// RequestPasswordReset is ForgotPassword followed by delivery of the code.
func (u *AuthUsecase) RequestPasswordReset(ctx context.Context, emailAddr string) (err error) {
	defer func() { record("request_password_reset", err) }()

	user, err := u.forgotPassword(ctx, emailAddr)
	if err != nil {
		return err
	}
	return u.send(ctx, user.Email, "Password Reset Request", otpBody("password_reset", *user.OTPCode))
}

// ResetPassword replaces the password if in.OTP is the user's current,
// unexpired code. Mismatched passwords fail before the store is touched.
func (u *AuthUsecase) ResetPassword(ctx context.Context, in ResetPasswordInput) (err error) {
	defer func() { record("reset_password", err) }()

	if in.NewPassword != in.ConfirmPassword {
		return domain.BadRequest(msgPasswordsMismatch)
	}
	if in.NewPassword == "" {
		return domain.BadRequest("Password is required")
	}

	cctx, cancel := u.callCtx(ctx)
	user, err := u.users.FindByEmail(cctx, canonicalEmail(in.Email))
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Unauthorized(msgInvalidOTP, err)
		}
		return storeUnavailable("find user", err)
	}
	if !otpMatches(user, in.OTP) {
		return domain.Unauthorized(msgInvalidOTP, domain.ErrOTPMismatch)
	}
	if user.OTPExpired(u.now()) {
		return domain.Unauthorized(msgOTPExpired, nil)
	}

	hash, err := u.hashPassword(in.NewPassword)
	if err != nil {
		return err
	}

	cctx, cancel = u.callCtx(ctx)
	defer cancel()
	if err := u.users.ResetPassword(cctx, user.ID, in.OTP, hash, u.otpCutoff()); err != nil {
		if errors.Is(err, domain.ErrOTPMismatch) {
			return domain.Unauthorized(msgInvalidOTP, err)
		}
		return storeUnavailable("reset password", err)
	}
	return nil
}

// VerifyToken returns the user id bound to raw. Every failure is reported as
// the same unauthorized error; the signer's cause stays in the chain.
func (u *AuthUsecase) VerifyToken(raw string) (string, error) {
	userID, err := u.tokens.Verify(raw)
	if err != nil {
		return "", domain.Unauthorized(msgInvalidToken, err)
	}
	return userID, nil
}

// DeleteUser hard-deletes a user. Only used to roll back a failed signup.
func (u *AuthUsecase) DeleteUser(ctx context.Context, id string) error {
	cctx, cancel := u.callCtx(ctx)
	defer cancel()
	if err := u.users.Delete(cctx, id); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.NotFound("User not found", err)
		}
		return storeUnavailable("delete user", err)
	}
	return nil
}

func (u *AuthUsecase) issueOTP(ctx context.Context, user *domain.User, purpose string) (string, error) {
	code, err := u.otps.Generate()
	if err != nil {
		return "", domain.Internal(msgInternal, err)
	}
	issuedAt := u.now().UTC()

	cctx, cancel := u.callCtx(ctx)
	defer cancel()
	if err := u.users.SetOTP(cctx, user.ID, code, issuedAt); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", domain.NotFound("User not found", err)
		}
		return "", storeUnavailable("save otp", err)
	}

	user.OTPCode = &code
	user.OTPIssuedAt = &issuedAt
	metrics.OTPIssuedTotal.WithLabelValues(purpose).Inc()
	return code, nil
}

func (u *AuthUsecase) findByEmail(ctx context.Context, addr, notFoundMsg string) (*domain.User, error) {
	cctx, cancel := u.callCtx(ctx)
	defer cancel()
	user, err := u.users.FindByEmail(cctx, addr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.NotFound(notFoundMsg, err)
		}
		return nil, storeUnavailable("find user", err)
	}
	return user, nil
}

func (u *AuthUsecase) send(ctx context.Context, to, subject, body string) error {
	cctx, cancel := u.callCtx(ctx)
	defer cancel()
	if err := u.email.Send(cctx, to, subject, body); err != nil {
		metrics.EmailsSentTotal.WithLabelValues("failed").Inc()
		return domain.Unavailable(msgEmailFailed, err)
	}
	metrics.EmailsSentTotal.WithLabelValues("sent").Inc()
	return nil
}

func (u *AuthUsecase) hashPassword(plain string) (string, error) {
	hash, err := u.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return "", domain.BadRequest("Password must be at most 72 bytes")
		}
		return "", domain.Internal(msgInternal, err)
	}
	return hash, nil
}

func (u *AuthUsecase) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, u.callTimeout)
}

// otpCutoff is the oldest issue time a code may have and still be accepted.
// The store re-checks it so a code that expired after OTPExpired is not consumed.
func (u *AuthUsecase) otpCutoff() time.Time {
	return u.now().Add(-domain.OTPValidity)
}

func otpMatches(user *domain.User, code string) bool {
	if !user.HasOTP() || code == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*user.OTPCode), []byte(code)) == 1
}

func otpBody(purpose, code string) string {
	intro := "Use the code below to verify your email address."
	if purpose == "password_reset" {
		intro = "Use the code below to reset your password."
	}
	return fmt.Sprintf(
		`<p>%s</p><p><strong>%s</strong></p><p>The code expires in %d minutes.</p>`,
		intro, code, int(domain.OTPValidity.Minutes()),
	)
}

func canonicalEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeEmail(s string) (string, error) {
	addr := canonicalEmail(s)
	if addr == "" {
		return "", domain.BadRequest("Email is required")
	}
	if err := validate.Var(addr, "email"); err != nil {
		return "", domain.BadRequest("Email is invalid")
	}
	return addr, nil
}

func storeUnavailable(op string, err error) error {
	return domain.Unavailable(msgUnavailable, fmt.Errorf("%s: %w", op, err))
}

func record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = domain.KindOf(err).String()
	}
	metrics.AuthOperationsTotal.WithLabelValues(op, outcome).Inc()
}
