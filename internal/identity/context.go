package identity

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/localnerve/reportdesk/internal/models"
	"go.uber.org/zap"
)

// ChangeKind names an auth state transition
type ChangeKind string

const (
	SignedIn         ChangeKind = "SIGNED_IN"
	SignedOut        ChangeKind = "SIGNED_OUT"
	PasswordRecovery ChangeKind = "PASSWORD_RECOVERY"
	UserUpdated      ChangeKind = "USER_UPDATED"
)

// Change is delivered to OnChange listeners
type Change struct {
	Kind    ChangeKind
	Session *Session
	Role    *models.Role
}

// State is the resolved view of a caller: no session means signed out,
// a nil Role means the role lookup failed or has no row.
type State struct {
	Session  *Session     `json:"session"`
	Role     *models.Role `json:"role"`
	User     *models.User `json:"user,omitempty"`
	Checking bool         `json:"checking"`
}

// SignedIn reports whether the state carries a usable (non-recovery) session
func (s State) SignedIn() bool {
	return s.Session != nil && !s.Session.Recovery
}

// IsAdmin reports an admin role
func (s State) IsAdmin() bool {
	return s.Role != nil && *s.Role == models.RoleAdmin
}

// HasRole reports whether the role is one of roles
func (s State) HasRole(roles ...models.Role) bool {
	if s.Role == nil {
		return false
	}
	for _, r := range roles {
		if *s.Role == r {
			return true
		}
	}
	return false
}

// RoleLookup finds the application user behind an identity
type RoleLookup interface {
	GetUserByAuthID(ctx context.Context, authUserID string) (*models.User, error)
}

// AppContext owns session resolution and auth state notifications for the process.
// It is created once, passed to whoever needs it, and disposed at shutdown.
type AppContext struct {
	provider Provider
	roles    RoleLookup
	log      *zap.Logger

	mu        sync.RWMutex
	listeners map[int]func(Change)
	nextID    int
	ready     bool
	disposed  bool
}

// NewAppContext creates an AppContext; call Init before use
func NewAppContext(provider Provider, roles RoleLookup, log *zap.Logger) *AppContext {
	return &AppContext{
		provider:  provider,
		roles:     roles,
		log:       log,
		listeners: make(map[int]func(Change)),
	}
}

// Provider returns the configured identity provider
func (a *AppContext) Provider() Provider {
	return a.provider
}

// Init checks the identity provider is reachable
func (a *AppContext) Init(ctx context.Context) error {
	if err := a.alive(); err != nil {
		return err
	}
	if err := a.provider.Ping(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	a.ready = true
	a.mu.Unlock()

	a.log.Info("identity context ready", zap.String("provider", a.provider.Name()))
	return nil
}

func (a *AppContext) alive() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.disposed {
		return ErrDisposed
	}
	return nil
}

// Ready reports whether Init succeeded; callers render a pending state until then
func (a *AppContext) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ready && !a.disposed
}

// state looks up the caller's application user and role; any failure leaves both nil
func (a *AppContext) state(ctx context.Context, session *Session) State {
	st := State{Session: session}
	if session == nil || session.Recovery {
		return st
	}
	user, err := a.roles.GetUserByAuthID(ctx, session.User.ID)
	if err != nil {
		a.log.Warn("role lookup failed", zap.String("auth_user_id", session.User.ID), zap.Error(err))
		return st
	}
	r := user.NormalizedRole()
	st.User = user
	st.Role = &r
	return st
}

// Resolve turns a bearer token into a State. An empty or rejected token is a signed out state.
func (a *AppContext) Resolve(ctx context.Context, token string) (State, error) {
	if err := a.alive(); err != nil {
		return State{}, err
	}
	if !a.Ready() {
		return State{Checking: true}, nil
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return State{}, nil
	}

	session, err := a.provider.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return State{}, nil
		}
		return State{}, err
	}
	return a.state(ctx, session), nil
}

// SignIn authenticates and notifies SIGNED_IN
func (a *AppContext) SignIn(ctx context.Context, email, password string) (State, error) {
	if err := a.alive(); err != nil {
		return State{}, err
	}
	session, err := a.provider.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return State{}, err
	}

	state := a.state(ctx, session)
	a.emit(Change{Kind: SignedIn, Session: session, Role: state.Role})
	return state, nil
}

// SignOut ends the session and notifies SIGNED_OUT
func (a *AppContext) SignOut(ctx context.Context, token string) error {
	if err := a.alive(); err != nil {
		return err
	}
	if err := a.provider.SignOut(ctx, token); err != nil {
		return err
	}
	a.emit(Change{Kind: SignedOut})
	return nil
}

// RequestPasswordReset sends a reset link that lands on origin/reset-password
func (a *AppContext) RequestPasswordReset(ctx context.Context, email, origin string) error {
	if err := a.alive(); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	return a.provider.RequestPasswordReset(ctx, email, ResetRedirect(origin))
}

// ResetPassword completes a recovery: the fragment carries the recovery token, the new password
// is validated, stored, and the recovery session is signed out.
func (a *AppContext) ResetPassword(ctx context.Context, fragment, password, confirm string) error {
	if err := a.alive(); err != nil {
		return err
	}
	token, err := ParseRecoveryFragment(fragment)
	if err != nil {
		return err
	}
	if err := ValidateNewPassword(password, confirm); err != nil {
		return err
	}

	session, err := a.provider.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return ErrResetLinkInvalid
		}
		return err
	}
	a.emit(Change{Kind: PasswordRecovery, Session: session})

	if err := a.provider.UpdatePassword(ctx, token, password); err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return ErrResetLinkInvalid
		}
		return err
	}
	a.emit(Change{Kind: UserUpdated, Session: session})

	if err := a.provider.SignOut(ctx, token); err != nil {
		a.log.Warn("sign out after password reset failed", zap.Error(err))
	}
	a.emit(Change{Kind: SignedOut})
	return nil
}

// OnChange registers fn for auth transitions and returns its unsubscribe func
func (a *AppContext) OnChange(fn func(Change)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return func() {}
	}

	id := a.nextID
	a.nextID++
	a.listeners[id] = fn

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *AppContext) emit(c Change) {
	a.mu.RLock()
	fns := make([]func(Change), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Dispose drops all listeners; later calls fail with ErrDisposed
func (a *AppContext) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disposed = true
	a.listeners = make(map[int]func(Change))
}
