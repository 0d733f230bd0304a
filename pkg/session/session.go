// Package session holds the explicit session context: the token pair of the
// signed-in user, its persistence in local storage and its refresh cycle.
//
// A Session exists from Login (or Restore) until Logout or until the server
// rejects the refresh token.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
	"github.com/golang-jwt/jwt/v5"

	"github.com/aretw0/stickies/pkg/adapters/remote"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/kv"
)

// Storage keys of the token pair.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// DefaultRefreshInterval is how often StartRefresh renews the access token.
const DefaultRefreshInterval = 4 * time.Minute

// ErrNoSession is returned by operations that need a signed-in user.
var ErrNoSession = errors.New("not logged in")

// Authenticator is the server side of the session.
type Authenticator interface {
	ObtainToken(ctx context.Context, email, password string) (remote.Tokens, error)
	RefreshToken(ctx context.Context, refresh string) (remote.Tokens, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, r remote.Registration) (remote.User, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ConfirmPasswordReset(ctx context.Context, userID int64, token, newPassword string) (string, error)
}

// Claims are the display fields carried by the access token.
type Claims struct {
	UserID    int64     `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Session is a signed-in user's token pair.
type Session struct {
	Access  string
	Refresh string
	Claims  Claims
}

// parseClaims reads claims without verifying the signature; the server is
// the only party that validates tokens.
func parseClaims(access string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, mc); err != nil {
		return Claims{}, err
	}
	var c Claims
	if v, ok := mc["email"].(string); ok {
		c.Email = v
	}
	if v, ok := mc["username"].(string); ok {
		c.Username = v
	}
	if v, ok := mc["user_id"].(float64); ok {
		c.UserID = int64(v)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// Manager owns the current session.
type Manager struct {
	auth    Authenticator
	storage kv.Storage
	logger  *slog.Logger

	mu        sync.RWMutex
	current   *Session
	listeners []func(*Session)
	lastRenew *time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager with no session. Call Restore to pick up
// tokens persisted by an earlier run.
func NewManager(auth Authenticator, storage kv.Storage, opts ...Option) *Manager {
	m := &Manager{
		auth:    auth,
		storage: storage,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers fn to be called after login, logout and expiry. fn
// receives the new session, or nil once logged out.
func (m *Manager) OnChange(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) notify(s *Session) {
	m.mu.RLock()
	listeners := slices.Clone(m.listeners)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// Current returns a copy of the session, or nil.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// LoggedIn reports whether a session is active.
func (m *Manager) LoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// Token implements remote.TokenSource.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.Access
}

func newSession(t remote.Tokens, logger *slog.Logger) *Session {
	claims, err := parseClaims(t.Access)
	if err != nil {
		logger.Debug("access token claims unreadable", "error", err)
	}
	return &Session{Access: t.Access, Refresh: t.Refresh, Claims: claims}
}

func (m *Manager) persist(ctx context.Context, s *Session) error {
	if err := m.storage.Set(ctx, AccessTokenKey, s.Access); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if err := m.storage.Set(ctx, RefreshTokenKey, s.Refresh); err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}
	return nil
}

func (m *Manager) clear(ctx context.Context) error {
	return errors.Join(
		m.storage.Remove(ctx, AccessTokenKey),
		m.storage.Remove(ctx, RefreshTokenKey),
	)
}

// Login obtains a token pair and starts a session.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	t, err := m.auth.ObtainToken(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	s := newSession(t, m.logger)
	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.logger.Info("logged in", "email", s.Claims.Email, "username", s.Claims.Username)
	m.notify(m.Current())
	return m.Current(), nil
}

// Restore resumes a session from persisted tokens. It reports whether one
// was found.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	access, ok, err := m.storage.Get(ctx, AccessTokenKey)
	if err != nil {
		return false, fmt.Errorf("restore session: %w", err)
	}
	if !ok || access == "" {
		return false, nil
	}
	refresh, _, err := m.storage.Get(ctx, RefreshTokenKey)
	if err != nil {
		return false, fmt.Errorf("restore session: %w", err)
	}

	s := newSession(remote.Tokens{Access: access, Refresh: refresh}, m.logger)
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return true, nil
}

// Logout ends the session: the server is told on a best-effort basis and the
// persisted tokens are removed.
func (m *Manager) Logout(ctx context.Context) error {
	if !m.LoggedIn() {
		return nil
	}
	if err := m.auth.Logout(ctx); err != nil {
		m.logger.Debug("server logout failed", "error", err)
	}
	return m.end(ctx, "logged out")
}

func (m *Manager) end(ctx context.Context, reason string) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	err := m.clear(ctx)
	m.logger.Info(reason)
	m.notify(nil)
	return err
}

// Refresh renews the access token. If the server rejects the refresh token
// the session is terminated and the error matches core.ErrUnauthorized.
// Other failures keep the session. If the session ends while the request is
// in flight the new tokens are dropped and ErrNoSession is returned.
func (m *Manager) Refresh(ctx context.Context) error {
	cur := m.Current()
	if cur == nil {
		return ErrNoSession
	}

	t, err := m.auth.RefreshToken(ctx, cur.Refresh)
	if errors.Is(err, core.ErrUnauthorized) {
		m.logger.Warn("refresh token rejected, ending session", "error", err)
		return errors.Join(fmt.Errorf("refresh: %w", err), m.end(ctx, "session expired"))
	}
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	if t.Refresh == "" {
		t.Refresh = cur.Refresh
	}
	s := newSession(t, m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	// A logout that raced the request wins; its tokens stay cleared.
	if m.current == nil {
		m.logger.Debug("session ended during refresh, dropping new tokens")
		return ErrNoSession
	}
	if err := m.persist(ctx, s); err != nil {
		return err
	}
	now := time.Now()
	m.current = s
	m.lastRenew = &now
	return nil
}

// StartRefresh renews the access token every interval until ctx is done or
// the session ends.
func (m *Manager) StartRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	lifecycle.Go(ctx, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if !m.LoggedIn() {
					return nil
				}
				if err := m.Refresh(ctx); err != nil {
					m.logger.Error("token refresh failed", "error", err)
					if !m.LoggedIn() {
						return nil
					}
				}
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		m.logger.Error("refresh loop panic", "error", err)
	}))
}

// Register creates an account. It does not log in.
func (m *Manager) Register(ctx context.Context, email, username, password string) (remote.User, error) {
	return m.auth.Register(ctx, remote.Registration{Email: email, Username: username, Password: password})
}

// RequestPasswordReset asks the server to mail a reset link.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	return m.auth.RequestPasswordReset(ctx, email)
}

// ConfirmPasswordReset completes a reset started by RequestPasswordReset.
func (m *Manager) ConfirmPasswordReset(ctx context.Context, userID int64, token, newPassword string) (string, error) {
	return m.auth.ConfirmPasswordReset(ctx, userID, token, newPassword)
}

// ManagerState exposes internal state for observability.
type ManagerState struct {
	LoggedIn    bool       `json:"logged_in"`
	Username    string     `json:"username,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
}

// State implements introspection.Introspectable.
func (m *Manager) State() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := ManagerState{LoggedIn: m.current != nil, LastRefresh: m.lastRenew}
	if m.current != nil {
		st.Username = m.current.Claims.Username
		if !m.current.Claims.ExpiresAt.IsZero() {
			exp := m.current.Claims.ExpiresAt
			st.ExpiresAt = &exp
		}
	}
	return st
}

// ComponentType implements introspection.Component.
func (m *Manager) ComponentType() string {
	return "session"
}

var (
	_ remote.TokenSource           = (*Manager)(nil)
	_ Authenticator                = (*remote.Client)(nil)
	_ introspection.Introspectable = (*Manager)(nil)
	_ introspection.Component      = (*Manager)(nil)
)
