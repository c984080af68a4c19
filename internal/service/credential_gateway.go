package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"anoint-auth/internal/autherr"
	"anoint-auth/internal/cache"
	"anoint-auth/internal/domain"
	"anoint-auth/internal/identity"
	"anoint-auth/internal/metrics"
)

// Result es la respuesta de las operaciones que mutan credenciales.
type Result struct {
	Success bool           `json:"success"`
	User    *domain.User   `json:"user,omitempty"`
	Err     *autherr.Error `json:"error,omitempty"`
}

func failed(err *autherr.Error) Result {
	return Result{Err: err}
}

// GatewayOptions configura el CredentialGateway.
type GatewayOptions struct {
	Logger           *zap.Logger
	Cache            *cache.SessionCache
	Resolver         *ProfileResolver
	Metrics          *metrics.Metrics
	ResetRedirectURL string
	MaxLoginAttempts int
	LockoutWindow    time.Duration
	// PushTimeout limita la re-resolucion del usuario en cada evento push.
	PushTimeout time.Duration
}

// CredentialGateway es el unico componente que habla con el proveedor de identidad.
type CredentialGateway struct {
	provider    identity.Provider
	logger      *zap.Logger
	cache       *cache.SessionCache
	resolver    *ProfileResolver
	metrics     *metrics.Metrics
	resetURL    string
	maxAttempts int
	lockout     time.Duration
	pushTimeout time.Duration

	group singleflight.Group
	epoch atomic.Uint64
	// pushMu serializa la comprobacion de epoch con la entrega y la escritura en cache.
	pushMu sync.Mutex
}

func NewCredentialGateway(provider identity.Provider, opts GatewayOptions) *CredentialGateway {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewProfileResolver(logger, nil, opts.Cache, Allowlist{})
	}
	if opts.MaxLoginAttempts <= 0 {
		opts.MaxLoginAttempts = cache.DefaultMaxAttempts
	}
	if opts.LockoutWindow <= 0 {
		opts.LockoutWindow = cache.DefaultLockoutWindow
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = 5 * time.Second
	}
	return &CredentialGateway{
		provider:    provider,
		logger:      logger,
		cache:       opts.Cache,
		resolver:    resolver,
		metrics:     opts.Metrics,
		resetURL:    opts.ResetRedirectURL,
		maxAttempts: opts.MaxLoginAttempts,
		lockout:     opts.LockoutWindow,
		pushTimeout: opts.PushTimeout,
	}
}

// SignIn valida el limite de intentos antes de llamar al proveedor.
func (g *CredentialGateway) SignIn(ctx context.Context, email, password string) Result {
	if g.provider == nil {
		return failed(autherr.New(autherr.CodeConfigError))
	}
	email = cache.NormalizeIdentifier(email)

	attempt := g.cache.CheckAuthAttempts(ctx, email, g.maxAttempts, g.lockout)
	if !attempt.Allowed {
		g.metrics.SignIn(string(autherr.CodeAccountLocked))
		g.logger.Info("sign in locked", zap.String("email", email))
		return failed(autherr.New(autherr.CodeAccountLocked))
	}

	sess, err := g.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		aerr := autherr.Classify(err)
		g.metrics.SignIn(string(aerr.Code))
		g.logger.Info("sign in failed",
			zap.String("email", email),
			zap.String("code", string(aerr.Code)),
			zap.Int("attempts_left", attempt.AttemptsLeft),
		)
		return failed(aerr)
	}

	user := g.resolver.Resolve(ctx, sess.User)
	g.cache.ResetAuthAttempts(ctx, email)
	g.cache.CacheSession(ctx, user)
	g.metrics.SignIn("success")
	return Result{Success: true, User: &user}
}

// SignUp crea la cuenta pendiente; no hay usuario hasta verificar el email.
func (g *CredentialGateway) SignUp(ctx context.Context, email, password, displayName string) Result {
	if g.provider == nil {
		return failed(autherr.New(autherr.CodeConfigError))
	}
	email = cache.NormalizeIdentifier(email)
	var metadata map[string]string
	if name := strings.TrimSpace(displayName); name != "" {
		metadata = map[string]string{"display_name": name}
	}
	if _, err := g.provider.SignUp(ctx, email, password, metadata); err != nil {
		aerr := autherr.Classify(err)
		g.logger.Info("sign up failed", zap.String("email", email), zap.String("code", string(aerr.Code)))
		return failed(aerr)
	}
	return Result{Success: true}
}

// SignOut es best-effort: la cache se limpia aunque el proveedor falle y nunca devuelve error.
func (g *CredentialGateway) SignOut(ctx context.Context) {
	if g.provider == nil {
		return
	}
	userID := ""
	if sess, err := g.provider.GetSession(ctx); err == nil && sess != nil {
		userID = sess.User.ID
	}
	if err := g.provider.SignOut(ctx); err != nil {
		g.logger.Warn("provider sign out failed", zap.Error(err))
	}
	if userID != "" {
		g.cache.ClearUser(ctx, userID)
	}
	g.group.Forget(currentUserKey)
}

func (g *CredentialGateway) RequestPasswordReset(ctx context.Context, email string) Result {
	if g.provider == nil {
		return failed(autherr.New(autherr.CodeConfigError))
	}
	email = cache.NormalizeIdentifier(email)
	if err := g.provider.ResetPasswordForEmail(ctx, email, g.resetURL); err != nil {
		aerr := autherr.Classify(err)
		g.logger.Info("password reset failed", zap.String("email", email), zap.String("code", string(aerr.Code)))
		return failed(aerr)
	}
	return Result{Success: true}
}

// UpdatePassword cierra el flujo de recuperacion sobre la sesion actual.
func (g *CredentialGateway) UpdatePassword(ctx context.Context, newPassword string) Result {
	if g.provider == nil {
		return failed(autherr.New(autherr.CodeConfigError))
	}
	p, err := g.provider.UpdateUser(ctx, identity.UserAttributes{Password: newPassword})
	if err != nil {
		aerr := autherr.Classify(err)
		g.logger.Info("password update failed", zap.String("code", string(aerr.Code)))
		return failed(aerr)
	}
	user := g.resolver.Resolve(ctx, p)
	g.cache.CacheSession(ctx, user)
	return Result{Success: true, User: &user}
}

const currentUserKey = "current"

// GetCurrentUser devuelve nil ante cualquier fallo. Llamadas concurrentes se colapsan.
func (g *CredentialGateway) GetCurrentUser(ctx context.Context) *domain.User {
	if g.provider == nil {
		return nil
	}
	v, _, _ := g.group.Do(currentUserKey, func() (any, error) {
		return g.currentUser(ctx), nil
	})
	user, _ := v.(*domain.User)
	if user == nil {
		return nil
	}
	out := *user
	return &out
}

func (g *CredentialGateway) currentUser(ctx context.Context) *domain.User {
	sess, err := g.provider.GetSession(ctx)
	if err != nil || sess == nil {
		if err != nil {
			g.logger.Debug("get session failed", zap.Error(err))
		}
		return nil
	}
	if user, ok := g.cache.GetSession(ctx, sess.User.ID); ok {
		return &user
	}
	p, err := g.provider.GetUser(ctx)
	if err != nil || p == nil {
		if err != nil {
			g.logger.Debug("get user failed", zap.Error(err))
		}
		return nil
	}
	user := g.resolver.Resolve(ctx, *p)
	g.cache.CacheSession(ctx, user)
	return &user
}

// OnAuthStateChange re-resuelve el usuario en cada evento con sesion y entrega nil
// al cerrar sesion. Una resolucion superada por un evento posterior se descarta
// sin tocar la cache.
func (g *CredentialGateway) OnAuthStateChange(fn func(identity.Event, *domain.User)) func() {
	if g.provider == nil || fn == nil {
		return func() {}
	}
	return g.provider.OnAuthStateChange(func(event identity.Event, sess *identity.Session) {
		if event == identity.EventSignedOut || sess == nil {
			g.pushMu.Lock()
			g.epoch.Add(1)
			fn(event, nil)
			g.pushMu.Unlock()
			return
		}
		epoch := g.epoch.Add(1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), g.pushTimeout)
			defer cancel()
			user, verified, ok := g.resolvePush(ctx, sess)
			if !ok {
				return
			}

			g.pushMu.Lock()
			defer g.pushMu.Unlock()
			if g.epoch.Load() != epoch {
				g.logger.Debug("dropping stale auth event", zap.String("event", string(event)))
				return
			}
			if verified {
				g.cache.CacheSession(ctx, user)
			}
			fn(event, &user)
		}()
	})
}

// resolvePush consulta al proveedor; sin sesion el evento se descarta. Ante otros
// fallos se usa el payload del evento, con verified=false para no cachearlo.
func (g *CredentialGateway) resolvePush(ctx context.Context, sess *identity.Session) (user domain.User, verified, ok bool) {
	p, err := g.provider.GetUser(ctx)
	switch {
	case err == nil && p != nil:
		return g.resolver.Resolve(ctx, *p), true, true
	case errors.Is(err, identity.ErrSessionMissing):
		g.logger.Debug("push event without session, dropping")
		return domain.User{}, false, false
	default:
		g.logger.Debug("push re-resolution fell back to event payload", zap.Error(err))
		return g.resolver.Resolve(ctx, sess.User), false, true
	}
}
