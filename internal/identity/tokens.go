package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"anoint-auth/internal/domain"
)

// TokenIssuer emite y valida los JWT de acceso y refresh del proveedor local.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	store      RefreshTokenStore
	now        func() time.Time
}

// TokenPair es el par emitido en cada inicio de sesion o rotacion.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type Claims struct {
	UserID        string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	TokenType     string `json:"typ"`
	jwt.RegisteredClaims
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	if store == nil {
		store = NewMemoryRefreshTokenStore()
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "anoint-auth",
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenIssuer) Issue(ctx context.Context, account domain.Account) (TokenPair, error) {
	if len(s.secret) == 0 {
		return TokenPair{}, ErrNotConfigured
	}
	now := s.now()
	access, err := s.sign(account, now, s.accessTTL, "access", "")
	if err != nil {
		return TokenPair{}, err
	}
	jti := uuid.NewString()
	refresh, err := s.sign(account, now, s.refreshTTL, "refresh", jti)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Save(ctx, jti, account.ID, s.refreshTTL); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.accessTTL),
	}, nil
}

// ConsumeRefresh valida y gasta un refresh token; devuelve el user id para rotar.
func (s *TokenIssuer) ConsumeRefresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return "", err
	}
	userID, err := s.store.Consume(ctx, claims.ID)
	if err != nil || userID != claims.UserID {
		return "", ErrRefreshNotFound
	}
	return claims.UserID, nil
}

func (s *TokenIssuer) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return err
	}
	return s.store.Revoke(ctx, claims.ID)
}

func (s *TokenIssuer) ParseAccessToken(accessToken string) (Claims, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Claims{}, ErrSessionMissing
	}
	claims, err := s.parse(accessToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != "access" || !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *TokenIssuer) parseRefresh(refreshToken string) (Claims, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Claims{}, ErrRefreshNotFound
	}
	claims, err := s.parse(refreshToken)
	if err != nil {
		if errors.Is(err, ErrJWTExpired) {
			return Claims{}, ErrRefreshNotFound
		}
		return Claims{}, err
	}
	if claims.TokenType != "refresh" || claims.ID == "" || !s.isValidClaims(claims) {
		return Claims{}, ErrRefreshNotFound
	}
	return claims, nil
}

func (s *TokenIssuer) sign(account domain.Account, now time.Time, ttl time.Duration, tokenType, jti string) (string, error) {
	claims := Claims{
		UserID:        account.ID,
		Email:         account.Email,
		EmailVerified: account.EmailConfirmedAt != nil,
		TokenType:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenIssuer) parse(tokenString string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrNotConfigured
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *TokenIssuer) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" || claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
