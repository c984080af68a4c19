package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"anoint-auth/internal/domain"
)

// AccountRepository define el contrato de persistencia de credenciales.
// Los registros inexistentes devuelven pgx.ErrNoRows.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
	UpdateDisplayName(ctx context.Context, id, displayName string, at time.Time) error
	SetOTP(ctx context.Context, id, otpHash, purpose string, expiresAt time.Time) error
	ClearOTP(ctx context.Context, id string) error
	// RecordOTPFailure suma un fallo y anula el codigo al llegar a maxAttempts.
	RecordOTPFailure(ctx context.Context, id string, maxAttempts int) (int, error)
	ConfirmEmail(ctx context.Context, id string, at time.Time) error
}

// PgAccountRepository implementa AccountRepository usando pgxpool.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

const accountColumns = `id, email, display_name, password_hash, email_confirmed_at,
	otp_code_hash, otp_purpose, otp_expires_at, otp_attempts, created_at, updated_at`

func (r *PgAccountRepository) Create(ctx context.Context, a domain.Account) error {
	const query = `
		INSERT INTO auth_accounts (id, email, display_name, password_hash, email_confirmed_at,
			otp_code_hash, otp_purpose, otp_expires_at, otp_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID,
		a.Email,
		a.DisplayName,
		a.PasswordHash,
		a.EmailConfirmedAt,
		a.OtpCodeHash,
		a.OtpPurpose,
		a.OtpExpiresAt,
		a.OtpAttempts,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func (r *PgAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM auth_accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *PgAccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM auth_accounts WHERE email = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.DisplayName,
		&a.PasswordHash,
		&a.EmailConfirmedAt,
		&a.OtpCodeHash,
		&a.OtpPurpose,
		&a.OtpExpiresAt,
		&a.OtpAttempts,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, err
	}
	return a, err
}

func (r *PgAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	const query = `UPDATE auth_accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, passwordHash, at)
}

func (r *PgAccountRepository) UpdateDisplayName(ctx context.Context, id, displayName string, at time.Time) error {
	const query = `UPDATE auth_accounts SET display_name = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, displayName, at)
}

func (r *PgAccountRepository) SetOTP(ctx context.Context, id, otpHash, purpose string, expiresAt time.Time) error {
	const query = `
		UPDATE auth_accounts
		SET otp_code_hash = $2, otp_purpose = $3, otp_expires_at = $4, otp_attempts = 0
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, otpHash, purpose, expiresAt)
}

func (r *PgAccountRepository) ClearOTP(ctx context.Context, id string) error {
	const query = `
		UPDATE auth_accounts
		SET otp_code_hash = '', otp_purpose = '', otp_expires_at = NULL, otp_attempts = 0
		WHERE id = $1
	`
	return r.execOne(ctx, query, id)
}

func (r *PgAccountRepository) RecordOTPFailure(ctx context.Context, id string, maxAttempts int) (int, error) {
	const query = `
		UPDATE auth_accounts
		SET otp_attempts = otp_attempts + 1,
			otp_code_hash = CASE WHEN otp_attempts + 1 >= $2 THEN '' ELSE otp_code_hash END,
			otp_purpose = CASE WHEN otp_attempts + 1 >= $2 THEN '' ELSE otp_purpose END,
			otp_expires_at = CASE WHEN otp_attempts + 1 >= $2 THEN NULL ELSE otp_expires_at END
		WHERE id = $1
		RETURNING otp_attempts
	`
	var attempts int
	if err := r.pool.QueryRow(ctx, query, id, maxAttempts).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *PgAccountRepository) ConfirmEmail(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE auth_accounts
		SET email_confirmed_at = $2, updated_at = $2,
			otp_code_hash = '', otp_purpose = '', otp_expires_at = NULL, otp_attempts = 0
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, at)
}

func (r *PgAccountRepository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
