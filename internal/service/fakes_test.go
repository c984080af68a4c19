package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"anoint-auth/internal/domain"
	"anoint-auth/internal/identity"
)

// fakeProvider simula el proveedor con un unico usuario y contadores de llamadas.
type fakeProvider struct {
	mu        sync.Mutex
	principal domain.Principal
	password  string
	session   *identity.Session
	listeners []func(identity.Event, *identity.Session)

	signInErr  error
	signUpErr  error
	signOutErr error
	resetErr   error
	getUserErr error
	updateErr  error

	signInCalls  atomic.Int32
	getUserCalls atomic.Int32
	getUserDelay time.Duration
	lastRedirect string
}

func newFakeProvider(email, password string) *fakeProvider {
	confirmed := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	return &fakeProvider{
		principal: domain.Principal{
			ID:               "user-1",
			Email:            email,
			EmailConfirmedAt: &confirmed,
			CreatedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			UpdatedAt:        confirmed,
		},
		password: password,
	}
}

func (f *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (identity.Session, error) {
	f.signInCalls.Add(1)
	if f.signInErr != nil {
		return identity.Session{}, f.signInErr
	}
	f.mu.Lock()
	if email != f.principal.Email || password != f.password {
		f.mu.Unlock()
		return identity.Session{}, identity.ErrInvalidCredentials
	}
	sess := identity.Session{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Now().Add(time.Hour), User: f.principal}
	f.session = &sess
	f.mu.Unlock()
	f.emit(identity.EventSignedIn, &sess)
	return sess, nil
}

func (f *fakeProvider) SignUp(_ context.Context, email, _ string, _ map[string]string) (domain.Principal, error) {
	if f.signUpErr != nil {
		return domain.Principal{}, f.signUpErr
	}
	return domain.Principal{ID: "new-user", Email: email}, nil
}

func (f *fakeProvider) SignOut(_ context.Context) error {
	f.mu.Lock()
	f.session = nil
	f.mu.Unlock()
	f.emit(identity.EventSignedOut, nil)
	return f.signOutErr
}

func (f *fakeProvider) GetSession(_ context.Context) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	out := *f.session
	return &out, nil
}

func (f *fakeProvider) GetUser(ctx context.Context) (*domain.Principal, error) {
	f.getUserCalls.Add(1)
	if f.getUserDelay > 0 {
		select {
		case <-time.After(f.getUserDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.getUserErr != nil {
		return nil, f.getUserErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, identity.ErrSessionMissing
	}
	p := f.principal
	return &p, nil
}

func (f *fakeProvider) UpdateUser(_ context.Context, attrs identity.UserAttributes) (domain.Principal, error) {
	if f.updateErr != nil {
		return domain.Principal{}, f.updateErr
	}
	if attrs.Password != "" && len(attrs.Password) < identity.MinPasswordLength {
		return domain.Principal{}, identity.ErrWeakPassword
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return domain.Principal{}, identity.ErrSessionMissing
	}
	f.password = attrs.Password
	return f.principal, nil
}

func (f *fakeProvider) ResetPasswordForEmail(_ context.Context, _ string, redirectTo string) error {
	f.mu.Lock()
	f.lastRedirect = redirectTo
	f.mu.Unlock()
	return f.resetErr
}

func (f *fakeProvider) OnAuthStateChange(fn func(identity.Event, *identity.Session)) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	idx := len(f.listeners) - 1
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.listeners[idx] = nil
		f.mu.Unlock()
	}
}

func (f *fakeProvider) emit(event identity.Event, sess *identity.Session) {
	f.mu.Lock()
	fns := append([]func(identity.Event, *identity.Session){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(event, sess)
		}
	}
}

// fakeProfiles permite simular errores del store de perfiles.
type fakeProfiles struct {
	profiles map[string]domain.Profile
	err      error
	calls    atomic.Int32
}

func (f *fakeProfiles) GetByID(_ context.Context, id string) (domain.Profile, error) {
	f.calls.Add(1)
	if f.err != nil {
		return domain.Profile{}, f.err
	}
	p, ok := f.profiles[id]
	if !ok {
		return domain.Profile{}, errors.New("no rows in result set")
	}
	return p, nil
}

func (f *fakeProfiles) Upsert(_ context.Context, p domain.Profile) error {
	if f.profiles == nil {
		f.profiles = map[string]domain.Profile{}
	}
	f.profiles[p.ID] = p
	return nil
}

// failingStore simula un redis caido: todas las operaciones fallan.
type failingStore struct{}

var errStoreDown = errors.New("dial tcp: connection refused")

func (failingStore) Get(ctx context.Context, _ string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetErr(errStoreDown)
	return cmd
}

func (failingStore) Set(ctx context.Context, _ string, _ interface{}, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetErr(errStoreDown)
	return cmd
}

func (failingStore) Del(ctx context.Context, _ ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetErr(errStoreDown)
	return cmd
}

func (failingStore) Eval(ctx context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(errStoreDown)
	return cmd
}

func (failingStore) Scan(ctx context.Context, _ uint64, _ string, _ int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	cmd.SetErr(errStoreDown)
	return cmd
}
