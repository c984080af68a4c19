package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"anoint-auth/internal/app"
	"anoint-auth/internal/config"
)

type codeSink struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *codeSink) SendVerificationCode(_ context.Context, to, code string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[to] = code
	return nil
}

func (s *codeSink) SendPasswordReset(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (s *codeSink) code(to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[to]
}

func newTestApp(t *testing.T) (*app.App, *codeSink) {
	t.Helper()
	sink := &codeSink{codes: map[string]string{}}
	cfg := &config.Config{
		DatabaseURL:          "memory://",
		ProfilesEnabled:      true,
		AdminEmails:          []string{"admin@anointarray.com"},
		JWTSecret:            "test-secret",
		JWTAccessTTLMinutes:  60,
		JWTRefreshTTLMinutes: 120,
		InitTimeout:          50 * time.Millisecond,
	}
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{Sender: sink})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, sink
}

func TestREPL_SignUpVerifyAndRedirects(t *testing.T) {
	ctx := context.Background()
	a, sink := newTestApp(t)
	out := &syncWriter{w: &bytes.Buffer{}}
	r := newREPL(a, a.Identity.NewClient(), "/login", out)
	defer r.store.Dispose()

	require.Eventually(t, func() bool { return !r.store.State().IsLoading }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.run(ctx, strings.NewReader("signup ana@example.com secret1 Ana Maria\n")))
	code := sink.code("ana@example.com")
	require.NotEmpty(t, code)

	require.NoError(t, r.run(ctx, strings.NewReader("verify ana@example.com "+code+"\n")))
	require.Eventually(t, func() bool {
		return r.nav.CurrentPath() == "/member/dashboard"
	}, time.Second, 5*time.Millisecond, "verified member should leave the login page")

	require.NoError(t, r.run(ctx, strings.NewReader("go /admin/users\n")))
	assert.Equal(t, "/member/dashboard", r.nav.CurrentPath())

	st := r.store.State()
	require.NotNil(t, st.User)
	assert.Equal(t, "Ana Maria", st.User.DisplayName)
	assert.True(t, st.IsMember())

	require.NoError(t, r.run(ctx, strings.NewReader("signout\n")))
	assert.Equal(t, "/login", r.nav.CurrentPath())
	assert.False(t, r.store.State().IsAuthenticated())
}

func TestREPL_ReportsAuthErrors(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	buf := &bytes.Buffer{}
	out := &syncWriter{w: buf}
	r := newREPL(a, a.Identity.NewClient(), "/", out)
	defer r.store.Dispose()

	require.NoError(t, r.run(ctx, strings.NewReader("signin ghost@example.com nope\nbogus\nsignin\nquit\nstate\n")))

	out.mu.Lock()
	text := buf.String()
	out.mu.Unlock()
	assert.Contains(t, text, "error [invalid_credentials]")
	assert.Contains(t, text, `unknown command "bogus"`)
	assert.Contains(t, text, "usage error")
	assert.NotContains(t, text, `"is_loading"`, "commands after quit must not run")
}

func TestSessionFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, sink := newTestApp(t)
	path := filepath.Join(t.TempDir(), "anoint", "session.json")

	_, err := a.Identity.SignUp(ctx, "ana@example.com", "secret1", nil)
	require.NoError(t, err)
	client := a.Identity.NewClient()
	_, err = client.VerifyEmail(ctx, "ana@example.com", sink.code("ana@example.com"))
	require.NoError(t, err)

	require.NoError(t, writeSessionFile(path, client))
	access, refresh := readSessionFile(path)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	restored := a.Identity.ClientFromTokens(ctx, access, refresh)
	p, err := restored.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", p.Email)

	require.NoError(t, restored.SignOut(ctx))
	require.NoError(t, writeSessionFile(path, restored))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
