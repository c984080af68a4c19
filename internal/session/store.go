// Package session mantiene el estado reactivo de autenticacion de un cliente
// (usuario, carga, ultimo error) y aplica redirecciones segun la politica.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"anoint-auth/internal/autherr"
	"anoint-auth/internal/domain"
	"anoint-auth/internal/identity"
	"anoint-auth/internal/metrics"
	"anoint-auth/internal/policy"
	"anoint-auth/internal/service"
)

// DefaultInitTimeout es la espera maxima antes de liberar IsLoading en el arranque.
const DefaultInitTimeout = time.Second

// Gateway es la parte del CredentialGateway que usa el store.
type Gateway interface {
	SignIn(ctx context.Context, email, password string) service.Result
	SignUp(ctx context.Context, email, password, displayName string) service.Result
	SignOut(ctx context.Context)
	RequestPasswordReset(ctx context.Context, email string) service.Result
	UpdatePassword(ctx context.Context, newPassword string) service.Result
	GetCurrentUser(ctx context.Context) *domain.User
	OnAuthStateChange(fn func(identity.Event, *domain.User)) func()
}

// Navigator abstrae la navegacion del cliente.
type Navigator interface {
	Replace(path string)
	CurrentPath() string
}

// State es la vista publica del store. Seq es el token de la ultima escritura aplicada.
type State struct {
	User      *domain.User   `json:"user"`
	IsLoading bool           `json:"is_loading"`
	Err       *autherr.Error `json:"error,omitempty"`
	Seq       uint64         `json:"seq"`
}

func (s State) IsAuthenticated() bool { return s.User != nil }

func (s State) IsAdmin() bool { return policy.IsAdmin(s.User) }

func (s State) IsMember() bool { return policy.IsMember(s.User) }

// Options configura un Store.
type Options struct {
	Gateway     Gateway
	Navigator   Navigator
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	InitTimeout time.Duration
}

// Store guarda el estado de sesion de un cliente. Ciclo de vida: New, Start,
// Dispose. Tras Dispose ninguna escritura se aplica.
type Store struct {
	gateway Gateway
	nav     Navigator
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu          sync.Mutex
	state       State
	path        string
	lastSeq     uint64
	applied     uint64
	loadingOps  int
	started     bool
	initDone    bool
	disposed    bool
	timer       *time.Timer
	unsubscribe func()
	subs        map[int]func(State)
	nextSub     int
	lastEffect  string
}

func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = DefaultInitTimeout
	}
	s := &Store{
		gateway: opts.Gateway,
		nav:     opts.Navigator,
		logger:  logger,
		metrics: opts.Metrics,
		timeout: opts.InitTimeout,
		subs:    make(map[int]func(State)),
	}
	if s.nav != nil {
		s.path = s.nav.CurrentPath()
	}
	return s
}

// Start lanza la inicializacion: lectura del usuario actual y suscripcion a eventos
// en paralelo. Un temporizador unico libera IsLoading si nada responde a tiempo.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.disposed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.loadingOps++
	s.state.IsLoading = true
	initSeq := s.reserveLocked()
	s.timer = time.AfterFunc(s.timeout, s.failsafe)
	s.mu.Unlock()
	s.publish()

	if s.gateway == nil {
		s.initFailed(fmt.Errorf("session store started without gateway"))
		return
	}

	unsubscribe := s.gateway.OnAuthStateChange(s.onAuthEvent)
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.initFailed(fmt.Errorf("session init panic: %v", r))
			}
		}()
		user := s.gateway.GetCurrentUser(ctx)
		s.update(initSeq, false, true, func(st *State) {
			st.User = user
		})
	}()
}

// Dispose corta la suscripcion y el temporizador. Es idempotente.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.subs = map[int]func(State){}
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// State devuelve una copia del estado actual.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registra fn para cada cambio de estado.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// SetPath informa de una navegacion y reevalua la politica.
func (s *Store) SetPath(path string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.path = path
	s.mu.Unlock()
	s.runEffect()
}

func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Store) SignIn(ctx context.Context, email, password string) bool {
	seq, ok := s.begin()
	if !ok {
		return false
	}
	res := s.gateway.SignIn(ctx, email, password)
	s.finish(seq, res, func(st *State) {
		if res.Success {
			st.User = res.User
		}
	})
	return res.Success
}

// SignUp no abre sesion: la cuenta queda pendiente de verificacion.
func (s *Store) SignUp(ctx context.Context, email, password, displayName string) bool {
	seq, ok := s.begin()
	if !ok {
		return false
	}
	res := s.gateway.SignUp(ctx, email, password, displayName)
	s.finish(seq, res, nil)
	return res.Success
}

// SignOut siempre termina sin usuario.
func (s *Store) SignOut(ctx context.Context) bool {
	seq, ok := s.begin()
	if !ok {
		return false
	}
	s.gateway.SignOut(ctx)
	s.finish(seq, service.Result{Success: true}, func(st *State) {
		st.User = nil
	})
	return true
}

func (s *Store) RequestPasswordReset(ctx context.Context, email string) bool {
	seq, ok := s.begin()
	if !ok {
		return false
	}
	res := s.gateway.RequestPasswordReset(ctx, email)
	s.finish(seq, res, nil)
	return res.Success
}

func (s *Store) UpdatePassword(ctx context.Context, newPassword string) bool {
	seq, ok := s.begin()
	if !ok {
		return false
	}
	res := s.gateway.UpdatePassword(ctx, newPassword)
	s.finish(seq, res, func(st *State) {
		if res.Success && res.User != nil {
			st.User = res.User
		}
	})
	return res.Success
}

// begin marca la operacion en curso, limpia el error previo y reserva el token
// con el que se aplicara el resultado.
func (s *Store) begin() (uint64, bool) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return 0, false
	}
	if s.gateway == nil {
		s.mu.Unlock()
		s.update(s.reserve(), false, false, func(st *State) {
			st.Err = autherr.New(autherr.CodeConfigError)
		})
		return 0, false
	}
	s.loadingOps++
	s.state.IsLoading = true
	clearSeq := s.reserveLocked()
	s.applied = clearSeq
	s.state.Err = nil
	s.state.Seq = clearSeq
	resultSeq := s.reserveLocked()
	s.mu.Unlock()
	s.publish()
	return resultSeq, true
}

func (s *Store) finish(seq uint64, res service.Result, mutate func(*State)) {
	s.update(seq, true, false, func(st *State) {
		if mutate != nil {
			mutate(st)
		}
		st.Err = res.Err
	})
}

func (s *Store) onAuthEvent(event identity.Event, user *domain.User) {
	seq := s.reserve()
	s.logger.Debug("auth state change", zap.String("event", string(event)), zap.Uint64("seq", seq))
	s.update(seq, false, true, func(st *State) {
		st.User = user
	})
}

func (s *Store) failsafe() {
	s.mu.Lock()
	if s.disposed || s.initDone {
		s.mu.Unlock()
		return
	}
	s.resolveInitLocked()
	s.state.IsLoading = s.loadingOps > 0
	s.mu.Unlock()
	s.logger.Warn("session init timed out, releasing loading state", zap.Duration("timeout", s.timeout))
	s.publish()
}

// initFailed usa un token nuevo para que el error de arranque siempre se muestre.
func (s *Store) initFailed(err error) {
	s.logger.Error("session init failed", zap.Error(err))
	s.update(s.reserve(), false, true, func(st *State) {
		st.Err = autherr.New(autherr.CodeInitError)
	})
}

// update aplica mutate solo si seq es mas nuevo que la ultima escritura aplicada.
// IsLoading se recalcula siempre: una operacion que termina libera su carga aunque
// su resultado llegue tarde.
func (s *Store) update(seq uint64, finishOp, resolvesInit bool, mutate func(*State)) bool {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false
	}
	if finishOp && s.loadingOps > 0 {
		s.loadingOps--
	}
	if resolvesInit && !s.initDone && s.started {
		s.resolveInitLocked()
	}
	fresh := seq > s.applied
	if fresh {
		s.applied = seq
		mutate(&s.state)
		s.state.Seq = seq
	} else {
		s.logger.Debug("dropping stale session update", zap.Uint64("seq", seq), zap.Uint64("applied", s.applied))
	}
	s.state.IsLoading = s.loadingOps > 0
	s.mu.Unlock()
	s.publish()
	return fresh
}

func (s *Store) resolveInitLocked() {
	s.initDone = true
	if s.loadingOps > 0 {
		s.loadingOps--
	}
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Store) reserve() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveLocked()
}

func (s *Store) reserveLocked() uint64 {
	s.lastSeq++
	return s.lastSeq
}

func (s *Store) publish() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	snapshot := s.state
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
	s.runEffect()
}

// runEffect evalua la politica cuando cambia (usuario, carga, path) y no hay carga en curso.
func (s *Store) runEffect() {
	s.mu.Lock()
	if s.disposed || s.nav == nil {
		s.mu.Unlock()
		return
	}
	key := effectKey(s.state, s.path)
	if key == s.lastEffect {
		s.mu.Unlock()
		return
	}
	s.lastEffect = key
	if s.state.IsLoading {
		s.mu.Unlock()
		return
	}
	decision := policy.Evaluate(s.state.User, s.path)
	if decision.Allowed || decision.RedirectPath == "" || decision.RedirectPath == s.path {
		s.mu.Unlock()
		return
	}
	s.path = decision.RedirectPath
	s.lastEffect = effectKey(s.state, s.path)
	s.mu.Unlock()

	s.metrics.Redirect(string(decision.Reason))
	s.logger.Debug("redirecting", zap.String("to", decision.RedirectPath), zap.String("reason", string(decision.Reason)))
	s.nav.Replace(decision.RedirectPath)
}

func effectKey(st State, path string) string {
	user := "-"
	if st.User != nil {
		user = fmt.Sprintf("%s|%s|%t", st.User.ID, st.User.Role, st.User.EmailVerified)
	}
	return fmt.Sprintf("%s|%t|%s", user, st.IsLoading, path)
}
