package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// DefaultAdminEmails es la allowlist compilada; ADMIN_EMAILS la reemplaza.
var DefaultAdminEmails = []string{
	"admin@anointarray.com",
	"info@anointarray.com",
}

// Config centraliza la configuracion del servicio.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	AppURL      string `env:"APP_URL" envDefault:"http://localhost:3000"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Sin perfiles el rol sale solo de la allowlist.
	ProfilesEnabled bool     `env:"PROFILES_ENABLED" envDefault:"true"`
	AdminEmails     []string `env:"ADMIN_EMAILS" envSeparator:","`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"60"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"ANOINT Array"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SessionCacheTTL  time.Duration `env:"SESSION_CACHE_TTL" envDefault:"24h"`
	ProfileCacheTTL  time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"1h"`
	MaxLoginAttempts int           `env:"MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	LockoutWindow    time.Duration `env:"LOCKOUT_WINDOW" envDefault:"15m"`
	InitTimeout      time.Duration `env:"SESSION_INIT_TIMEOUT" envDefault:"1s"`

	// Limite por IP sobre /api/auth; 0 lo deshabilita.
	AuthRequestsPerMinute int `env:"AUTH_REQUESTS_PER_MINUTE" envDefault:"60"`
	// IPs o CIDRs de proxies confiables, separados por coma. Vacio: se usa la IP del peer.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// LoadConfig carga la configuracion desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.AdminEmails) == 0 {
		cfg.AdminEmails = append([]string(nil), DefaultAdminEmails...)
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	return &cfg, nil
}

// IsProduction indica si el logging de fallos de cache debe silenciarse.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

// CacheEnabled exige ambos valores; con uno solo la cache queda deshabilitada.
func (c *Config) CacheEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != "" && strings.TrimSpace(c.RedisPassword) != ""
}

// PasswordResetURL es el destino del enlace de recuperacion.
func (c *Config) PasswordResetURL() string {
	return c.AppURL + "/reset-password"
}
