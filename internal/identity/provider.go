// Package identity define el puerto del proveedor de identidad y una
// implementacion local (credenciales en Postgres, bcrypt y JWT).
package identity

import (
	"context"
	"errors"
	"time"

	"anoint-auth/internal/domain"
)

// Event es el tipo de notificacion push del proveedor.
type Event string

const (
	EventInitialSession   Event = "INITIAL_SESSION"
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventTokenRefreshed   Event = "TOKEN_REFRESHED"
	EventUserUpdated      Event = "USER_UPDATED"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
)

// Session es la sesion emitida por el proveedor.
type Session struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresAt    time.Time        `json:"expires_at"`
	User         domain.Principal `json:"user"`
}

// UserAttributes lista los cambios permitidos en UpdateUser; vacio significa sin cambio.
type UserAttributes struct {
	Password    string
	DisplayName string
}

// Provider es el cliente del proveedor de identidad para un portador de sesion.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (domain.Principal, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*Session, error)
	GetUser(ctx context.Context) (*domain.Principal, error)
	UpdateUser(ctx context.Context, attrs UserAttributes) (domain.Principal, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	OnAuthStateChange(fn func(Event, *Session)) (unsubscribe func())
}

// Mensajes con la redaccion del proveedor hospedado; autherr los clasifica por substring.
var (
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("Email not confirmed")
	ErrUserExists         = errors.New("User already registered")
	ErrWeakPassword       = errors.New("Password should be at least 6 characters")
	ErrInvalidEmail       = errors.New("Unable to validate email address: invalid format")
	ErrSessionMissing     = errors.New("Auth session missing!")
	ErrJWTExpired         = errors.New("JWT expired")
	ErrJWTInvalid         = errors.New("Invalid JWT")
	ErrRefreshNotFound    = errors.New("Invalid Refresh Token: Refresh Token Not Found")
	ErrOTPInvalid         = errors.New("Token has expired or is invalid")
	ErrOverRateLimit      = errors.New("For security purposes, you can only request this after 60 seconds")
	ErrEmailDelivery      = errors.New("Error sending confirmation email")
	ErrNotConfigured      = errors.New("identity provider not configured")
)

const MinPasswordLength = 6
