package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"anoint-auth/internal/config"
	"anoint-auth/internal/domain"
	"anoint-auth/internal/email"
)

type recordingSender struct {
	email.Sender
	code string
}

func (s *recordingSender) SendVerificationCode(_ context.Context, _ string, code string, _ time.Time) error {
	s.code = code
	return nil
}

func memoryConfig() *config.Config {
	return &config.Config{
		DatabaseURL:          "memory://",
		ProfilesEnabled:      true,
		AdminEmails:          []string{"admin@anointarray.com"},
		JWTSecret:            "test-secret",
		JWTAccessTTLMinutes:  60,
		JWTRefreshTTLMinutes: 120,
		MaxLoginAttempts:     5,
	}
}

func TestNew_MemoryModeWiresIdentityAndGateway(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	a, err := New(ctx, memoryConfig(), zap.NewNop(), Options{Sender: sender})
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Cache.Enabled(), "cache needs both redis values")

	_, err = a.Identity.SignUp(ctx, "admin@anointarray.com", "secret1", nil)
	require.NoError(t, err)
	_, err = a.Identity.VerifyEmail(ctx, "admin@anointarray.com", sender.code)
	require.NoError(t, err)

	gw := a.Gateway(a.Identity.NewClient())
	res := gw.SignIn(ctx, "admin@anointarray.com", "secret1")
	require.True(t, res.Success, "unexpected error: %v", res.Err)
	assert.Equal(t, domain.RoleAdmin, res.User.Role)
}

func TestNew_ProfilesDisabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.ProfilesEnabled = false
	a, err := New(context.Background(), cfg, zap.NewNop(), Options{})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Profiles)
}
