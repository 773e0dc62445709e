package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	"github.com/ErlanBelekov/identity-service/internal/infrastructure/memory"
	"github.com/ErlanBelekov/identity-service/internal/password"
	"github.com/ErlanBelekov/identity-service/internal/token"
	"github.com/ErlanBelekov/identity-service/internal/usecase"
)

// ---- fakes ----

// faultyRepo is a memory store whose methods can be overridden per test.
type faultyRepo struct {
	*memory.UserRepository
	create      func(ctx context.Context, u *domain.User) (*domain.User, error)
	findByEmail func(ctx context.Context, email string) (*domain.User, error)
	delete      func(ctx context.Context, id string) error
}

func (r *faultyRepo) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	if r.create != nil {
		return r.create(ctx, u)
	}
	return r.UserRepository.Create(ctx, u)
}

func (r *faultyRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	if r.findByEmail != nil {
		return r.findByEmail(ctx, email)
	}
	return r.UserRepository.FindByEmail(ctx, email)
}

func (r *faultyRepo) Delete(ctx context.Context, id string) error {
	if r.delete != nil {
		return r.delete(ctx, id)
	}
	return r.UserRepository.Delete(ctx, id)
}

type sentMail struct {
	to, subject, body string
}

type fakeEmailSender struct {
	mu   sync.Mutex
	sent []sentMail
	send func(ctx context.Context, to, subject, body string) error
}

func (s *fakeEmailSender) Send(ctx context.Context, to, subject, body string) error {
	if s.send != nil {
		if err := s.send(ctx, to, subject, body); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{to, subject, body})
	return nil
}

// fakeHasher keeps tests fast; bcrypt itself is covered in internal/password.
type fakeHasher struct{}

func (fakeHasher) Hash(plain string) (string, error) {
	if len(plain) > password.MaxLength {
		return "", password.ErrPasswordTooLong
	}
	return "hashed:" + plain, nil
}

func (fakeHasher) Verify(plain, hash string) bool { return hash == "hashed:"+plain }

// sequenceOTP hands out "1000", "1001", ...
type sequenceOTP struct {
	n atomic.Int64
}

func (g *sequenceOTP) Generate() (string, error) {
	return fmt.Sprintf("%04d", 1000+g.n.Add(1)-1), nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---- helpers ----

const testJWTKey = "test-jwt-secret-at-least-32-chars!!"

type fixture struct {
	uc     *usecase.AuthUsecase
	repo   *faultyRepo
	sender *fakeEmailSender
	signer *token.Signer
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signer, err := token.NewSigner([]byte(testJWTKey), domain.TokenTTL)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		repo:   &faultyRepo{UserRepository: memory.NewUserRepository()},
		sender: &fakeEmailSender{},
		signer: signer,
		clock:  &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.uc = usecase.NewAuthUsecase(f.repo, f.sender, fakeHasher{}, &sequenceOTP{}, signer,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		usecase.AuthOptions{CallTimeout: time.Second, Now: f.clock.Now})
	return f
}

func (f *fixture) signUp(t *testing.T, name, email, pw string) *usecase.SignUpResult {
	t.Helper()
	res, err := f.uc.SignUp(context.Background(), usecase.SignUpInput{FullName: name, Email: email, Password: pw})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return res
}

func assertKind(t *testing.T, err error, want domain.Kind, wantMsg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("err = nil, want %s %q", want, wantMsg)
	}
	var de *domain.Error
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *domain.Error", err)
	}
	if de.Kind != want {
		t.Errorf("kind = %s, want %s", de.Kind, want)
	}
	if wantMsg != "" && de.Message != wantMsg {
		t.Errorf("message = %q, want %q", de.Message, wantMsg)
	}
}

// ---- SignUp ----

func TestSignUp_CreatesUnverifiedUserAndEmailsCode(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "A@X.com ", "pw1")

	if res.User.Verified {
		t.Error("new user must be unverified")
	}
	if res.User.Email != "a@x.com" {
		t.Errorf("email = %q, want canonical a@x.com", res.User.Email)
	}
	if res.User.PasswordHash == "pw1" {
		t.Error("password stored in plain text")
	}

	stored, err := f.repo.FindByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.HasOTP() || *stored.OTPCode != res.OTP {
		t.Errorf("stored otp = %v, want %q", stored.OTPCode, res.OTP)
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(f.sender.sent))
	}
	m := f.sender.sent[0]
	if m.to != "a@x.com" || m.subject != "Welcome Alice!" || !strings.Contains(m.body, res.OTP) {
		t.Errorf("mail = %+v", m)
	}

	sub, err := f.signer.Verify(res.Token)
	if err != nil || sub != res.User.ID {
		t.Errorf("token subject = %q (%v), want %q", sub, err, res.User.ID)
	}
}

func TestSignUp_DuplicateEmail_Conflict(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "Alice", "a@x.com", "pw1")

	_, err := f.uc.SignUp(context.Background(), usecase.SignUpInput{FullName: "Alice2", Email: "a@x.com", Password: "pw2"})
	assertKind(t, err, domain.KindConflict, "User with this email already exists")
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Error("cause not preserved")
	}
}

func TestSignUp_InvalidInput_BadRequest(t *testing.T) {
	cases := []usecase.SignUpInput{
		{FullName: "Alice", Email: "", Password: "pw1"},
		{FullName: "Alice", Email: "not-an-email", Password: "pw1"},
		{FullName: "Alice", Email: "a@x.com", Password: ""},
		{FullName: " ", Email: "a@x.com", Password: "pw1"},
		{FullName: "Alice", Email: "a@x.com", Password: strings.Repeat("p", 73)},
	}
	for _, in := range cases {
		f := newFixture(t)
		f.repo.create = func(context.Context, *domain.User) (*domain.User, error) {
			t.Fatalf("store touched for %+v", in)
			return nil, nil
		}
		_, err := f.uc.SignUp(context.Background(), in)
		assertKind(t, err, domain.KindBadRequest, "")
	}
}

func TestSignUp_EmailFailure_RollsBackUser(t *testing.T) {
	f := newFixture(t)
	f.sender.send = func(context.Context, string, string, string) error { return errors.New("smtp down") }

	_, err := f.uc.SignUp(context.Background(), usecase.SignUpInput{FullName: "Alice", Email: "a@x.com", Password: "pw1"})
	assertKind(t, err, domain.KindUnavailable, "Failed to send email")

	if _, err := f.repo.FindByEmail(context.Background(), "a@x.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("user survived failed signup: %v", err)
	}

	// The address is free again.
	f.sender.send = nil
	f.signUp(t, "Alice", "a@x.com", "pw1")
}

func TestSignUp_RollbackFailure_ReturnsOriginalError(t *testing.T) {
	f := newFixture(t)
	f.sender.send = func(context.Context, string, string, string) error { return errors.New("smtp down") }
	f.repo.delete = func(context.Context, string) error { return errors.New("db down") }

	_, err := f.uc.SignUp(context.Background(), usecase.SignUpInput{FullName: "Alice", Email: "a@x.com", Password: "pw1"})
	assertKind(t, err, domain.KindUnavailable, "Failed to send email")
	if strings.Contains(err.Error(), "db down") {
		t.Errorf("rollback error leaked into %v", err)
	}
}

func TestSignUp_CancelledRequest_StillRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.sender.send = func(context.Context, string, string, string) error {
		cancel()
		return context.Canceled
	}
	var deleteCtxErr error
	deleted := false
	f.repo.delete = func(ctx context.Context, id string) error {
		deleted = true
		deleteCtxErr = ctx.Err()
		return f.repo.UserRepository.Delete(ctx, id)
	}

	_, err := f.uc.SignUp(ctx, usecase.SignUpInput{FullName: "Alice", Email: "a@x.com", Password: "pw1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !deleted {
		t.Fatal("rollback not attempted")
	}
	if deleteCtxErr != nil {
		t.Errorf("rollback ran on a cancelled context: %v", deleteCtxErr)
	}
}

func TestSignUp_StoreTimeout_Unavailable(t *testing.T) {
	f := newFixture(t)
	f.uc = usecase.NewAuthUsecase(f.repo, f.sender, fakeHasher{}, &sequenceOTP{}, f.signer,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		usecase.AuthOptions{CallTimeout: 20 * time.Millisecond})
	f.repo.create = func(ctx context.Context, _ *domain.User) (*domain.User, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.uc.SignUp(context.Background(), usecase.SignUpInput{FullName: "Alice", Email: "a@x.com", Password: "pw1"})
	assertKind(t, err, domain.KindUnavailable, "Service temporarily unavailable")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded in chain", err)
	}
}

// ---- GenerateAndSaveOTP ----

func TestGenerateAndSaveOTP_ReplacesPreviousCode(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")

	code, err := f.uc.GenerateAndSaveOTP(context.Background(), "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if code == res.OTP {
		t.Fatal("expected a new code")
	}

	_, err = f.uc.VerifyOTP(context.Background(), "a@x.com", res.OTP)
	assertKind(t, err, domain.KindUnauthorized, "Invalid OTP or OTP has expired")

	if _, err := f.uc.VerifyOTP(context.Background(), "a@x.com", code); err != nil {
		t.Errorf("new code rejected: %v", err)
	}
}

func TestGenerateAndSaveOTP_UnknownUser_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.GenerateAndSaveOTP(context.Background(), "nobody@x.com")
	assertKind(t, err, domain.KindNotFound, "User nobody@x.com not found")
}

// ---- VerifyOTP ----

func TestVerifyOTP_Success_MarksVerifiedAndClearsCode(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")

	user, err := f.uc.VerifyOTP(context.Background(), "a@x.com", res.OTP)
	if err != nil {
		t.Fatal(err)
	}
	if !user.Verified || user.HasOTP() {
		t.Errorf("user = %+v, want verified with no code", user)
	}
}

func TestVerifyOTP_Failures(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")

	_, err := f.uc.VerifyOTP(context.Background(), "a@x.com", "0000")
	assertKind(t, err, domain.KindUnauthorized, "Invalid OTP or OTP has expired")

	_, err = f.uc.VerifyOTP(context.Background(), "nobody@x.com", res.OTP)
	assertKind(t, err, domain.KindUnauthorized, "Invalid OTP or OTP has expired")

	_, err = f.uc.VerifyOTP(context.Background(), "a@x.com", "")
	assertKind(t, err, domain.KindUnauthorized, "Invalid OTP or OTP has expired")
}

func TestVerifyOTP_ExpiryWindow(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")

	f.clock.Advance(domain.OTPValidity + time.Second)
	_, err := f.uc.VerifyOTP(context.Background(), "a@x.com", res.OTP)
	assertKind(t, err, domain.KindUnauthorized, "OTP has expired")
}

func TestVerifyOTP_AtWindowEdge_Accepted(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")

	f.clock.Advance(domain.OTPValidity)
	if _, err := f.uc.VerifyOTP(context.Background(), "a@x.com", res.OTP); err != nil {
		t.Errorf("code rejected at exactly the window edge: %v", err)
	}
}

func TestVerifyOTP_Twice_AlreadyVerified(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")

	if _, err := f.uc.VerifyOTP(context.Background(), "a@x.com", res.OTP); err != nil {
		t.Fatal(err)
	}
	_, err := f.uc.VerifyOTP(context.Background(), "a@x.com", res.OTP)
	assertKind(t, err, domain.KindUnauthorized, "User is already verified")
}

func TestVerifyOTP_ConcurrentSameCode_OneWins(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.uc.VerifyOTP(context.Background(), "a@x.com", res.OTP); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("%d verifications succeeded, want 1", got)
	}
}

// ---- Login ----

func TestLogin_UnverifiedUserGetsToken(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")

	login, err := f.uc.Login(context.Background(), "a@x.com", "pw1")
	if err != nil {
		t.Fatal(err)
	}
	sub, err := f.signer.Verify(login.Token)
	if err != nil || sub != res.User.ID {
		t.Errorf("login token subject = %q (%v), want %q", sub, err, res.User.ID)
	}
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "Alice", "a@x.com", "pw1")

	_, err := f.uc.Login(context.Background(), "b@x.com", "pw1")
	assertKind(t, err, domain.KindNotFound, "User does not exist")

	_, err = f.uc.Login(context.Background(), "a@x.com", "wrong")
	assertKind(t, err, domain.KindUnauthorized, "Incorrect email or password.")
}

// ---- ForgotPassword / ResetPassword ----

func TestForgotPassword_StoresFreshCode(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")

	user, err := f.uc.ForgotPassword(context.Background(), "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if !user.HasOTP() || *user.OTPCode == res.OTP {
		t.Errorf("otp = %v, want a fresh code", user.OTPCode)
	}

	_, err = f.uc.ForgotPassword(context.Background(), "nobody@x.com")
	assertKind(t, err, domain.KindNotFound, "There is no user with this email address")
}

func TestRequestPasswordReset_EmailsCode(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "Alice", "a@x.com", "pw1")

	if err := f.uc.RequestPasswordReset(context.Background(), "a@x.com"); err != nil {
		t.Fatal(err)
	}
	stored, _ := f.repo.FindByEmail(context.Background(), "a@x.com")
	last := f.sender.sent[len(f.sender.sent)-1]
	if last.subject != "Password Reset Request" || !strings.Contains(last.body, *stored.OTPCode) {
		t.Errorf("mail = %+v, want reset code %q", last, *stored.OTPCode)
	}
}

func TestResetPassword_MismatchRejectedBeforeStore(t *testing.T) {
	f := newFixture(t)
	f.repo.findByEmail = func(context.Context, string) (*domain.User, error) {
		t.Fatal("store touched")
		return nil, nil
	}

	err := f.uc.ResetPassword(context.Background(), usecase.ResetPasswordInput{
		Email: "a@x.com", OTP: "1000", NewPassword: "a", ConfirmPassword: "b",
	})
	assertKind(t, err, domain.KindBadRequest, "Passwords do not match")
}

func TestResetPassword_Success_ReplacesPasswordOnce(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "Alice", "a@x.com", "pw1")
	user, err := f.uc.ForgotPassword(context.Background(), "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	in := usecase.ResetPasswordInput{Email: "a@x.com", OTP: *user.OTPCode, NewPassword: "pw2", ConfirmPassword: "pw2"}

	if err := f.uc.ResetPassword(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if _, err := f.uc.Login(context.Background(), "a@x.com", "pw1"); err == nil {
		t.Error("old password still accepted")
	}
	if _, err := f.uc.Login(context.Background(), "a@x.com", "pw2"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	assertKind(t, f.uc.ResetPassword(context.Background(), in), domain.KindUnauthorized, "Invalid OTP")
}

func TestResetPassword_WrongOrExpiredCode(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "Alice", "a@x.com", "pw1")
	user, _ := f.uc.ForgotPassword(context.Background(), "a@x.com")

	err := f.uc.ResetPassword(context.Background(), usecase.ResetPasswordInput{
		Email: "a@x.com", OTP: "9999", NewPassword: "pw2", ConfirmPassword: "pw2",
	})
	assertKind(t, err, domain.KindUnauthorized, "Invalid OTP")

	f.clock.Advance(domain.OTPValidity + time.Minute)
	err = f.uc.ResetPassword(context.Background(), usecase.ResetPasswordInput{
		Email: "a@x.com", OTP: *user.OTPCode, NewPassword: "pw2", ConfirmPassword: "pw2",
	})
	assertKind(t, err, domain.KindUnauthorized, "OTP has expired")
}

// expiringAfterCheck rebuilds f's usecase with a clock that sits on the last
// valid instant for the first read after the user lookup and moves past the
// window for every read after that, so the code expires between the usecase's
// own expiry check and the store update.
func expiringAfterCheck(t *testing.T, f *fixture) *usecase.AuthUsecase {
	t.Helper()
	edge := f.clock.Now().Add(domain.OTPValidity)
	var looked atomic.Bool
	var reads atomic.Int32
	f.repo.findByEmail = func(ctx context.Context, email string) (*domain.User, error) {
		looked.Store(true)
		return f.repo.UserRepository.FindByEmail(ctx, email)
	}
	now := func() time.Time {
		if looked.Load() && reads.Add(1) > 1 {
			return edge.Add(time.Second)
		}
		return edge
	}
	return usecase.NewAuthUsecase(f.repo, f.sender, fakeHasher{}, &sequenceOTP{}, f.signer,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		usecase.AuthOptions{CallTimeout: time.Second, Now: now})
}

func TestVerifyOTP_ExpiresBeforeConsume_Rejected(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")
	uc := expiringAfterCheck(t, f)

	_, err := uc.VerifyOTP(context.Background(), "a@x.com", res.OTP)
	assertKind(t, err, domain.KindUnauthorized, "Invalid OTP or OTP has expired")

	stored, err := f.repo.UserRepository.FindByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Verified {
		t.Error("expired code was consumed")
	}
}

func TestResetPassword_ExpiresBeforeUpdate_Rejected(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "Alice", "a@x.com", "pw1")
	user, err := f.uc.ForgotPassword(context.Background(), "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	uc := expiringAfterCheck(t, f)

	err = uc.ResetPassword(context.Background(), usecase.ResetPasswordInput{
		Email: "a@x.com", OTP: *user.OTPCode, NewPassword: "pw2", ConfirmPassword: "pw2",
	})
	assertKind(t, err, domain.KindUnauthorized, "Invalid OTP")

	if _, err := f.uc.Login(context.Background(), "a@x.com", "pw1"); err != nil {
		t.Errorf("old password no longer works: %v", err)
	}
}

// ---- VerifyToken / DeleteUser ----

func TestVerifyToken(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")

	sub, err := f.uc.VerifyToken(res.Token)
	if err != nil || sub != res.User.ID {
		t.Errorf("VerifyToken = %q, %v", sub, err)
	}

	_, err = f.uc.VerifyToken("garbage")
	assertKind(t, err, domain.KindUnauthorized, "Invalid or expired token")
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("cause lost: %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "Alice", "a@x.com", "pw1")

	if err := f.uc.DeleteUser(context.Background(), res.User.ID); err != nil {
		t.Fatal(err)
	}
	assertKind(t, f.uc.DeleteUser(context.Background(), res.User.ID), domain.KindNotFound, "")
}
