package identity

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"anoint-auth/internal/domain"
)

// Client es el cliente del proveedor local para un unico portador de sesion
// (un proceso CLI o una peticion HTTP). Implementa Provider.
type Client struct {
	svc *Service

	mu        sync.Mutex
	session   *Session
	listeners map[int]func(Event, *Session)
	nextID    int
}

var _ Provider = (*Client)(nil)

func (s *Service) NewClient() *Client {
	return &Client{svc: s, listeners: make(map[int]func(Event, *Session))}
}

// ClientFromTokens restaura una sesion previa. Si el access token caduco se
// intenta rotar con el refresh token; si nada sirve el cliente queda sin sesion.
func (s *Service) ClientFromTokens(ctx context.Context, accessToken, refreshToken string) *Client {
	c := s.NewClient()
	if !s.configured() || (accessToken == "" && refreshToken == "") {
		return c
	}
	if accessToken != "" {
		if claims, err := s.tokens.ParseAccessToken(accessToken); err == nil {
			if p, err := s.User(ctx, accessToken); err == nil {
				c.session = &Session{
					AccessToken:  accessToken,
					RefreshToken: refreshToken,
					ExpiresAt:    claims.ExpiresAt.Time,
					User:         p,
				}
				return c
			}
		}
	}
	if refreshToken != "" {
		if sess, err := s.Refresh(ctx, refreshToken); err == nil {
			c.session = &sess
		}
	}
	return c
}

// Tokens devuelve el par vigente para persistirlo fuera del proceso.
func (c *Client) Tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return "", ""
	}
	return c.session.AccessToken, c.session.RefreshToken
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	sess, err := c.svc.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	c.setSession(EventSignedIn, &sess)
	return sess, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) (domain.Principal, error) {
	return c.svc.SignUp(ctx, email, password, metadata)
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess != nil && sess.RefreshToken != "" {
		if err := c.svc.Revoke(ctx, sess.RefreshToken); err != nil {
			c.svc.logger.Debug("revoke refresh token failed", zap.Error(err))
		}
	}
	c.setSession(EventSignedOut, nil)
	return nil
}

// GetSession devuelve la sesion vigente, rotandola si el access token caduco.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return nil, nil
	}
	if c.svc.now().Before(sess.ExpiresAt) {
		out := *sess
		return &out, nil
	}
	next, err := c.svc.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		c.setSession(EventSignedOut, nil)
		return nil, err
	}
	c.setSession(EventTokenRefreshed, &next)
	return &next, nil
}

// RefreshSession rota el par de tokens aunque el access token siga vigente.
func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return nil, ErrSessionMissing
	}
	next, err := c.svc.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		c.setSession(EventSignedOut, nil)
		return nil, err
	}
	c.setSession(EventTokenRefreshed, &next)
	return &next, nil
}

func (c *Client) GetUser(ctx context.Context) (*domain.Principal, error) {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionMissing
	}
	p, err := c.svc.User(ctx, sess.AccessToken)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateUser(ctx context.Context, attrs UserAttributes) (domain.Principal, error) {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return domain.Principal{}, err
	}
	if sess == nil {
		return domain.Principal{}, ErrSessionMissing
	}
	p, err := c.svc.UpdateUser(ctx, sess.AccessToken, attrs)
	if err != nil {
		return domain.Principal{}, err
	}
	next := *sess
	next.User = p
	c.setSession(EventUserUpdated, &next)
	return p, nil
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.svc.SendRecovery(ctx, email, redirectTo)
}

// VerifyEmail canjea el codigo de registro y abre sesion.
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (Session, error) {
	sess, err := c.svc.VerifyEmail(ctx, email, code)
	if err != nil {
		return Session{}, err
	}
	c.setSession(EventSignedIn, &sess)
	return sess, nil
}

// Recover canjea el codigo de recuperacion y notifica PASSWORD_RECOVERY.
func (c *Client) Recover(ctx context.Context, email, code string) (Session, error) {
	sess, err := c.svc.Recover(ctx, email, code)
	if err != nil {
		return Session{}, err
	}
	c.setSession(EventPasswordRecovery, &sess)
	return sess, nil
}

// OnAuthStateChange registra fn. La sesion actual se entrega como
// INITIAL_SESSION de forma asincrona.
func (c *Client) OnAuthStateChange(fn func(Event, *Session)) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	initial := copySession(c.session)
	c.mu.Unlock()

	go func() {
		c.mu.Lock()
		_, ok := c.listeners[id]
		c.mu.Unlock()
		if ok {
			fn(EventInitialSession, initial)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) setSession(event Event, sess *Session) {
	c.mu.Lock()
	c.session = copySession(sess)
	fns := make([]func(Event, *Session), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(event, copySession(sess))
	}
}

func copySession(sess *Session) *Session {
	if sess == nil {
		return nil
	}
	out := *sess
	return &out
}
