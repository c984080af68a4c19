package identity

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"anoint-auth/internal/domain"
	"anoint-auth/internal/email"
	"anoint-auth/internal/repository"
)

// Service es el motor del proveedor local: cuentas, verificacion y tokens.
// Los clientes por portador de sesion se crean con NewClient.
type Service struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
	tokens   *TokenIssuer
	sender   email.Sender
	limiter  EmailRateLimiter
	now      func() time.Time
}

func NewService(logger *zap.Logger, accounts repository.AccountRepository, tokens *TokenIssuer, sender email.Sender, limiter EmailRateLimiter) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewMemoryEmailLimiter(time.Minute, 1)
	}
	if sender == nil {
		sender = email.NewDisabledSender("email sender not configured")
	}
	return &Service{
		logger:   logger,
		accounts: accounts,
		tokens:   tokens,
		sender:   sender,
		limiter:  limiter,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) configured() bool {
	return s != nil && s.accounts != nil && s.tokens != nil
}

// SignUp registra la cuenta sin confirmar y envia el codigo de verificacion.
func (s *Service) SignUp(ctx context.Context, emailAddr, password string, metadata map[string]string) (domain.Principal, error) {
	if !s.configured() {
		return domain.Principal{}, ErrNotConfigured
	}
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return domain.Principal{}, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return domain.Principal{}, ErrWeakPassword
	}

	_, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err == nil {
		return domain.Principal{}, ErrUserExists
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Principal{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Principal{}, err
	}

	now := s.now()
	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		DisplayName:  strings.TrimSpace(metadata["display_name"]),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return domain.Principal{}, ErrUserExists
		}
		return domain.Principal{}, err
	}

	code, hashed, expiresAt, err := generateOTP(now, signupOTPTTL)
	if err != nil {
		return domain.Principal{}, err
	}
	if err := s.accounts.SetOTP(ctx, account.ID, hashed, purposeSignup, expiresAt); err != nil {
		return domain.Principal{}, err
	}
	if err := s.sender.SendVerificationCode(ctx, emailAddr, code, expiresAt); err != nil {
		s.logger.Warn("send verification code failed", zap.Error(err), zap.String("email", emailAddr))
		return domain.Principal{}, ErrEmailDelivery
	}

	return account.Principal(), nil
}

// SignIn valida credenciales; una cuenta sin confirmar no obtiene sesion.
func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	if !s.configured() {
		return Session{}, ErrNotConfigured
	}
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if account.PasswordHash == "" {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if account.EmailConfirmedAt == nil {
		return Session{}, ErrEmailNotConfirmed
	}
	return s.issue(ctx, account)
}

// User devuelve el principal asociado al access token.
func (s *Service) User(ctx context.Context, accessToken string) (domain.Principal, error) {
	account, err := s.accountForAccess(ctx, accessToken)
	if err != nil {
		return domain.Principal{}, err
	}
	return account.Principal(), nil
}

// Refresh rota el refresh token y emite una sesion nueva.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if !s.configured() {
		return Session{}, ErrNotConfigured
	}
	userID, err := s.tokens.ConsumeRefresh(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrRefreshNotFound
		}
		return Session{}, err
	}
	return s.issue(ctx, account)
}

func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	if !s.configured() {
		return ErrNotConfigured
	}
	return s.tokens.Revoke(ctx, refreshToken)
}

// SendRecovery envia el enlace de recuperacion. Un email desconocido no es error
// para no revelar que cuentas existen.
func (s *Service) SendRecovery(ctx context.Context, emailAddr, redirectTo string) error {
	if !s.configured() {
		return ErrNotConfigured
	}
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return ErrInvalidEmail
	}
	if !s.limiter.Allow(emailAddr) {
		return ErrOverRateLimit
	}

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug("recovery requested for unknown email", zap.String("email", emailAddr))
			return nil
		}
		return err
	}

	code, hashed, expiresAt, err := generateOTP(s.now(), recoveryOTPTTL)
	if err != nil {
		return err
	}
	if err := s.accounts.SetOTP(ctx, account.ID, hashed, purposeRecovery, expiresAt); err != nil {
		return err
	}
	if err := s.sender.SendPasswordReset(ctx, emailAddr, recoveryLink(redirectTo, emailAddr, code), expiresAt); err != nil {
		s.logger.Warn("send password reset failed", zap.Error(err), zap.String("email", emailAddr))
		return ErrEmailDelivery
	}
	return nil
}

// VerifyEmail confirma la cuenta con el codigo de registro y abre sesion.
func (s *Service) VerifyEmail(ctx context.Context, emailAddr, code string) (Session, error) {
	account, err := s.checkOTP(ctx, emailAddr, code, purposeSignup)
	if err != nil {
		return Session{}, err
	}
	at := s.now()
	if err := s.accounts.ConfirmEmail(ctx, account.ID, at); err != nil {
		return Session{}, err
	}
	account.EmailConfirmedAt = &at
	account.UpdatedAt = at
	return s.issue(ctx, account)
}

// Recover canjea el codigo de recuperacion por una sesion; el cliente
// la notifica como PASSWORD_RECOVERY.
func (s *Service) Recover(ctx context.Context, emailAddr, code string) (Session, error) {
	account, err := s.checkOTP(ctx, emailAddr, code, purposeRecovery)
	if err != nil {
		return Session{}, err
	}
	if err := s.accounts.ClearOTP(ctx, account.ID); err != nil {
		return Session{}, err
	}
	// Recuperar por email prueba la posesion del buzon.
	if account.EmailConfirmedAt == nil {
		at := s.now()
		if err := s.accounts.ConfirmEmail(ctx, account.ID, at); err != nil {
			return Session{}, err
		}
		account.EmailConfirmedAt = &at
	}
	return s.issue(ctx, account)
}

func (s *Service) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (domain.Principal, error) {
	account, err := s.accountForAccess(ctx, accessToken)
	if err != nil {
		return domain.Principal{}, err
	}
	now := s.now()
	if attrs.Password != "" {
		if len(attrs.Password) < MinPasswordLength {
			return domain.Principal{}, ErrWeakPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(attrs.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Principal{}, err
		}
		if err := s.accounts.UpdatePassword(ctx, account.ID, string(hash), now); err != nil {
			return domain.Principal{}, err
		}
		account.PasswordHash = string(hash)
		account.UpdatedAt = now
	}
	if name := strings.TrimSpace(attrs.DisplayName); name != "" {
		if err := s.accounts.UpdateDisplayName(ctx, account.ID, name, now); err != nil {
			return domain.Principal{}, err
		}
		account.DisplayName = name
		account.UpdatedAt = now
	}
	return account.Principal(), nil
}

func (s *Service) accountForAccess(ctx context.Context, accessToken string) (domain.Account, error) {
	if !s.configured() {
		return domain.Account{}, ErrNotConfigured
	}
	claims, err := s.tokens.ParseAccessToken(accessToken)
	if err != nil {
		return domain.Account{}, err
	}
	account, err := s.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrJWTInvalid
		}
		return domain.Account{}, err
	}
	return account, nil
}

func (s *Service) checkOTP(ctx context.Context, emailAddr, code, purpose string) (domain.Account, error) {
	if !s.configured() {
		return domain.Account{}, ErrNotConfigured
	}
	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	if !isValidOTPCode(code) {
		return domain.Account{}, ErrOTPInvalid
	}
	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrOTPInvalid
		}
		return domain.Account{}, err
	}
	if account.OtpCodeHash == "" || account.OtpExpiresAt == nil || account.OtpPurpose != purpose {
		return domain.Account{}, ErrOTPInvalid
	}
	if s.now().After(*account.OtpExpiresAt) {
		return domain.Account{}, ErrOTPInvalid
	}
	if !verifyOTP(code, account.OtpCodeHash) {
		attempts, err := s.accounts.RecordOTPFailure(ctx, account.ID, maxOTPAttempts)
		if err != nil {
			return domain.Account{}, err
		}
		if attempts >= maxOTPAttempts {
			s.logger.Info("otp invalidated after failed attempts",
				zap.String("email", emailAddr),
				zap.String("purpose", purpose),
				zap.Int("attempts", attempts),
			)
		}
		return domain.Account{}, ErrOTPInvalid
	}
	return account, nil
}

func (s *Service) issue(ctx context.Context, account domain.Account) (Session, error) {
	pair, err := s.tokens.Issue(ctx, account)
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		User:         account.Principal(),
	}, nil
}

func normalizeEmail(emailAddr string) string {
	return strings.ToLower(strings.TrimSpace(emailAddr))
}

func isValidEmail(emailAddr string) bool {
	if emailAddr == "" {
		return false
	}
	addr, err := mail.ParseAddress(emailAddr)
	if err != nil || addr.Address != emailAddr {
		return false
	}
	_, domainPart, ok := strings.Cut(emailAddr, "@")
	return ok && strings.Contains(domainPart, ".")
}

func recoveryLink(redirectTo, emailAddr, code string) string {
	q := url.Values{}
	q.Set("email", emailAddr)
	q.Set("code", code)
	q.Set("type", purposeRecovery)
	sep := "?"
	if strings.Contains(redirectTo, "?") {
		sep = "&"
	}
	return redirectTo + sep + q.Encode()
}
