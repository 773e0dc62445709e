package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	"github.com/ErlanBelekov/identity-service/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const userColumns = `id, full_name, email, password_hash, verified, otp_code, otp_issued_at, created_at, updated_at`

var _ repository.UserRepository = (*UserRepository)(nil)

type UserRepository struct {
	db dbtx
}

func NewUserRepository(db dbtx) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (full_name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query, user.FullName, user.Email, user.PasswordHash)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	// Token subjects are caller-controlled; a non-UUID can never match a row.
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrUserNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (r *UserRepository) SetOTP(ctx context.Context, userID, code string, issuedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET otp_code = $2, otp_issued_at = $3, updated_at = NOW()
		WHERE id = $1`, userID, code, issuedAt)
	if err != nil {
		return fmt.Errorf("set otp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ConsumeVerificationOTP only matches while the row still holds an unexpired
// code, so two concurrent verifications with the same code cannot both succeed.
func (r *UserRepository) ConsumeVerificationOTP(ctx context.Context, userID, code string, issuedAfter time.Time) (*domain.User, error) {
	query := `
		UPDATE users
		SET    verified      = TRUE,
		       otp_code      = NULL,
		       otp_issued_at = NULL,
		       updated_at    = NOW()
		WHERE  id = $1
		  AND  verified = FALSE
		  AND  otp_code = $2
		  AND  otp_issued_at >= $3
		RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRow(ctx, query, userID, code, issuedAfter))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrOTPMismatch
		}
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) ResetPassword(ctx context.Context, userID, code, passwordHash string, issuedAfter time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET    password_hash = $3,
		       otp_code      = NULL,
		       otp_issued_at = NULL,
		       updated_at    = NOW()
		WHERE  id = $1
		  AND  otp_code = $2
		  AND  otp_issued_at >= $4`, userID, code, passwordHash, issuedAfter)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOTPMismatch
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrUserNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) ClearExpiredOTPs(ctx context.Context, issuedBefore time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET    otp_code = NULL, otp_issued_at = NULL, updated_at = NOW()
		WHERE  otp_issued_at < $1`, issuedBefore)
	if err != nil {
		return 0, fmt.Errorf("clear expired otps: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Verified,
		&u.OTPCode, &u.OTPIssuedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
