package config

import "testing"

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/anoint")
	t.Setenv("APP_URL", "https://anointarray.com/")
	t.Setenv("APP_ENV", "")
	t.Setenv("ADMIN_EMAILS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AppURL != "https://anointarray.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.AppURL)
	}
	if cfg.PasswordResetURL() != "https://anointarray.com/reset-password" {
		t.Fatalf("unexpected reset url %q", cfg.PasswordResetURL())
	}
	if len(cfg.AdminEmails) != len(DefaultAdminEmails) {
		t.Fatalf("expected default allowlist, got %+v", cfg.AdminEmails)
	}
	if cfg.MaxLoginAttempts != 5 || cfg.LockoutWindow.Minutes() != 15 {
		t.Fatalf("unexpected lockout defaults: %d %v", cfg.MaxLoginAttempts, cfg.LockoutWindow)
	}
	if cfg.IsProduction() {
		t.Fatalf("expected development by default")
	}
	if len(cfg.TrustedProxies) != 0 {
		t.Fatalf("expected no trusted proxies by default, got %+v", cfg.TrustedProxies)
	}
}

func TestLoadConfig_TrustedProxies(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/anoint")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1,10.1.0.0/16")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "10.1.0.0/16" {
		t.Fatalf("unexpected trusted proxies %+v", cfg.TrustedProxies)
	}
}

func TestLoadConfig_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is empty")
	}
}

func TestCacheEnabled_RequiresBothValues(t *testing.T) {
	cfg := &Config{RedisAddr: "localhost:6379"}
	if cfg.CacheEnabled() {
		t.Fatalf("expected cache disabled with only address")
	}
	cfg.RedisPassword = "secret"
	if !cfg.CacheEnabled() {
		t.Fatalf("expected cache enabled with address and password")
	}
}

func TestLoadConfig_AdminEmailsOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/anoint")
	t.Setenv("ADMIN_EMAILS", "a@x.com,b@x.com")
	t.Setenv("APP_ENV", "Production")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.AdminEmails) != 2 || cfg.AdminEmails[1] != "b@x.com" {
		t.Fatalf("unexpected admin emails %+v", cfg.AdminEmails)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production")
	}
}
