package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"anoint-auth/internal/domain"
)

var ErrDuplicateEmail = errors.New("duplicate key value violates unique constraint \"auth_accounts_email_key\"")

// MemoryAccountRepository guarda cuentas en memoria (modo local y tests).
type MemoryAccountRepository struct {
	mu      sync.Mutex
	byID    map[string]domain.Account
	byEmail map[string]string
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:    make(map[string]domain.Account),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryAccountRepository) Create(_ context.Context, a domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(a.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrDuplicateEmail
	}
	r.byID[a.ID] = a
	r.byEmail[email] = a.ID
	return nil
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, id string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (r *MemoryAccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	r.mu.Lock()
	id, ok := r.byEmail[strings.ToLower(email)]
	r.mu.Unlock()
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryAccountRepository) update(id string, fn func(*domain.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(&a)
	r.byID[id] = a
	return nil
}

func (r *MemoryAccountRepository) UpdatePassword(_ context.Context, id, passwordHash string, at time.Time) error {
	return r.update(id, func(a *domain.Account) {
		a.PasswordHash = passwordHash
		a.UpdatedAt = at
	})
}

func (r *MemoryAccountRepository) UpdateDisplayName(_ context.Context, id, displayName string, at time.Time) error {
	return r.update(id, func(a *domain.Account) {
		a.DisplayName = displayName
		a.UpdatedAt = at
	})
}

func (r *MemoryAccountRepository) SetOTP(_ context.Context, id, otpHash, purpose string, expiresAt time.Time) error {
	return r.update(id, func(a *domain.Account) {
		a.OtpCodeHash = otpHash
		a.OtpPurpose = purpose
		a.OtpExpiresAt = &expiresAt
		a.OtpAttempts = 0
	})
}

func (r *MemoryAccountRepository) ClearOTP(_ context.Context, id string) error {
	return r.update(id, clearOTP)
}

func (r *MemoryAccountRepository) RecordOTPFailure(_ context.Context, id string, maxAttempts int) (int, error) {
	var attempts int
	err := r.update(id, func(a *domain.Account) {
		a.OtpAttempts++
		attempts = a.OtpAttempts
		if attempts >= maxAttempts {
			clearOTP(a)
			a.OtpAttempts = attempts
		}
	})
	return attempts, err
}

func clearOTP(a *domain.Account) {
	a.OtpCodeHash = ""
	a.OtpPurpose = ""
	a.OtpExpiresAt = nil
	a.OtpAttempts = 0
}

func (r *MemoryAccountRepository) ConfirmEmail(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(a *domain.Account) {
		a.EmailConfirmedAt = &at
		a.UpdatedAt = at
		clearOTP(a)
	})
}

// MemoryProfileRepository guarda perfiles en memoria.
type MemoryProfileRepository struct {
	mu    sync.Mutex
	items map[string]domain.Profile
}

func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{items: make(map[string]domain.Profile)}
}

func (r *MemoryProfileRepository) GetByID(_ context.Context, id string) (domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return domain.Profile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (r *MemoryProfileRepository) Upsert(_ context.Context, profile domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[profile.ID]; ok && profile.CreatedAt.IsZero() {
		profile.CreatedAt = existing.CreatedAt
	}
	r.items[profile.ID] = profile
	return nil
}
