// Package app arma las dependencias compartidas por cmd/api y cmd/authctl.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"anoint-auth/internal/cache"
	"anoint-auth/internal/config"
	"anoint-auth/internal/db"
	"anoint-auth/internal/email"
	"anoint-auth/internal/identity"
	"anoint-auth/internal/metrics"
	"anoint-auth/internal/repository"
	"anoint-auth/internal/service"
)

// App contiene los componentes de larga vida. Close libera pool y redis.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Cache    *cache.SessionCache
	Identity *identity.Service
	Profiles repository.ProfileRepository
	Resolver *service.ProfileResolver

	pool  *pgxpool.Pool
	redis *redis.Client
}

// Options permite sustituir el sender de email (la CLI imprime en consola).
type Options struct {
	Sender email.Sender
}

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// New conecta postgres (o memoria con DATABASE_URL=memory://) y redis, y arma la identidad.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	a.Registry = prometheus.NewRegistry()
	a.Metrics = metrics.New(a.Registry)

	var accounts repository.AccountRepository
	if db.IsMemoryURL(cfg.DatabaseURL) {
		logger.Warn("using in-memory account and profile stores")
		accounts = repository.NewMemoryAccountRepository()
		a.Profiles = repository.NewMemoryProfileRepository()
	} else {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		a.pool = pool
		accounts = repository.NewPgAccountRepository(pool)
		a.Profiles = repository.NewPgProfileRepository(pool)
	}
	if !cfg.ProfilesEnabled {
		a.Profiles = nil
	}

	var (
		refreshStore identity.RefreshTokenStore
		limiter      identity.EmailRateLimiter
	)
	if cfg.CacheEnabled() {
		a.redis = cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			// La cache sigue en fail-open; tokens y limites quedan en memoria.
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			refreshStore = identity.NewRedisRefreshTokenStore(a.redis)
			limiter = identity.NewRedisEmailLimiter(a.redis, time.Minute, 1)
		}
		cancel()
	} else {
		logger.Info("session cache disabled", zap.Bool("redis_addr_set", cfg.RedisAddr != ""))
	}

	a.Cache = cache.New(a.redis, cache.Options{
		Logger:     logger,
		Debug:      !cfg.IsProduction(),
		Metrics:    a.Metrics,
		SessionTTL: cfg.SessionCacheTTL,
		ProfileTTL: cfg.ProfileCacheTTL,
	})

	sender := opts.Sender
	if sender == nil {
		sender = newSender(cfg, logger)
	}
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}
	tokens := identity.NewTokenIssuer(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		refreshStore,
	)
	a.Identity = identity.NewService(logger, accounts, tokens, sender, limiter)
	a.Resolver = service.NewProfileResolver(logger, a.Profiles, a.Cache, service.NewAllowlist(cfg.AdminEmails))
	return a, nil
}

func newSender(cfg *config.Config, logger *zap.Logger) email.Sender {
	if cfg.SMTPHost == "" {
		return email.NewDisabledSender("email sender not configured")
	}
	sender, err := email.NewSMTPSender(email.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUser,
		Password:    cfg.SMTPPass,
		From:        cfg.SMTPFrom,
		FromName:    cfg.SMTPFromName,
		ImplicitTLS: cfg.SMTPUseTLS,
	})
	if err != nil {
		logger.Warn("smtp sender init failed", zap.Error(err))
		return email.NewDisabledSender(err.Error())
	}
	return sender
}

// Gateway construye un CredentialGateway sobre el proveedor de una sesion.
func (a *App) Gateway(provider identity.Provider) *service.CredentialGateway {
	return service.NewCredentialGateway(provider, service.GatewayOptions{
		Logger:           a.Logger,
		Cache:            a.Cache,
		Resolver:         a.Resolver,
		Metrics:          a.Metrics,
		ResetRedirectURL: a.Config.PasswordResetURL(),
		MaxLoginAttempts: a.Config.MaxLoginAttempts,
		LockoutWindow:    a.Config.LockoutWindow,
	})
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("redis close", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
