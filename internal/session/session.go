// Package session keeps the signed-in identity: the bearer token and user
// profile persisted in the storage port, validated against the backend.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"taskboard/internal/connectivity"
	"taskboard/internal/logging"
	"taskboard/internal/service"
	"taskboard/internal/storage"
)

// ErrNoSession is returned by token sources when nobody is signed in.
var ErrNoSession = errors.New("not logged in")

// errExpired rejects a token whose exp claim has passed.
var errExpired = errors.New("token expired")

// Manager owns the current session.
type Manager struct {
	store  storage.Store
	auth   service.Authenticator
	policy connectivity.Policy

	mu      sync.Mutex
	current *service.Session
}

// New creates a Manager.
func New(store storage.Store, auth service.Authenticator, policy connectivity.Policy) *Manager {
	return &Manager{store: store, auth: auth, policy: policy}
}

// Load returns the current session, validating the persisted token the
// first time. It returns nil when nobody is signed in.
func (m *Manager) Load(ctx context.Context) (*service.Session, error) {
	if s := m.Current(); s != nil {
		return s, nil
	}
	token, ok, err := m.store.Get(storage.KeyToken)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if !ok || token == "" {
		return nil, nil
	}
	return m.Validate(ctx, token)
}

// Validate checks token against the backend and rebuilds the session from
// the persisted user. Rejected tokens clear the persisted session. A network
// failure keeps the persisted session usable when the policy allows it.
func (m *Manager) Validate(ctx context.Context, token string) (*service.Session, error) {
	err := m.check(ctx, token)

	switch {
	case err == nil:
		user := m.persistedUser(ctx)
		if user == nil {
			m.clear(ctx)
			return nil, nil
		}
		return m.set(service.Session{Token: token, User: *user}), nil

	case errors.Is(err, context.Canceled):
		return nil, err

	case connectivity.IsNetworkError(err):
		if !m.policy.Fallback(err) {
			return nil, err
		}
		user := m.persistedUser(ctx)
		if user == nil {
			if rerr := m.store.Remove(storage.KeyToken); rerr != nil {
				logging.Warn(ctx, "could not remove token", "error", rerr)
			}
			return nil, nil
		}
		logging.Warn(ctx, "backend not reachable, keeping stored session", "error", err)
		return m.set(service.Session{Token: token, User: *user}), nil

	default:
		logging.Debug(ctx, "token rejected", "error", err)
		m.clear(ctx)
		return nil, nil
	}
}

func (m *Manager) check(ctx context.Context, token string) error {
	if claims, err := ParseClaims(token); err == nil && claims.Expired(m.now()) {
		return errExpired
	}
	if !m.policy.Reachable() {
		return connectivity.ErrUnreachable
	}
	return m.auth.Validate(ctx, token)
}

// SignIn authenticates with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*service.Session, error) {
	var (
		resp service.AuthResponse
		err  = connectivity.ErrUnreachable
	)
	if m.policy.Reachable() {
		resp, err = m.auth.Login(ctx, email, password)
	}
	return m.establish(ctx, resp, err, email, "")
}

// SignUp creates an account and signs in to it.
func (m *Manager) SignUp(ctx context.Context, email, password, name string) (*service.Session, error) {
	var (
		resp service.AuthResponse
		err  = connectivity.ErrUnreachable
	)
	if m.policy.Reachable() {
		resp, err = m.auth.Register(ctx, email, password, name)
	}
	return m.establish(ctx, resp, err, email, name)
}

func (m *Manager) establish(ctx context.Context, resp service.AuthResponse, err error, email, name string) (*service.Session, error) {
	var s service.Session
	switch {
	case err == nil:
		s = service.Session{Token: resp.AccessToken, User: resp.User}
	case m.policy.Fallback(err):
		logging.Warn(ctx, "backend not reachable, signing in offline", "email", email, "error", err)
		s = m.policy.MintSession(email, name)
	default:
		return nil, err
	}

	if err := m.persist(s); err != nil {
		return nil, err
	}
	return m.set(s), nil
}

// persist writes the user before the token so an interrupted write leaves
// no token behind.
func (m *Manager) persist(s service.Session) error {
	data, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := m.store.Set(storage.KeyUser, string(data)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := m.store.Set(storage.KeyToken, s.Token); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SignOut forgets the session. Storage failures are logged, never returned.
func (m *Manager) SignOut(ctx context.Context) {
	m.clear(ctx)
}

func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	for _, key := range []string{storage.KeyToken, storage.KeyUser} {
		if err := m.store.Remove(key); err != nil {
			logging.Warn(ctx, "could not clear stored session", "key", key, "error", err)
		}
	}
}

// Current returns a copy of the in-memory session, or nil.
func (m *Manager) Current() *service.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// Token implements oauth2.TokenSource over the in-memory session.
func (m *Manager) Token() (*oauth2.Token, error) {
	s := m.Current()
	if s == nil || s.Token == "" {
		return nil, ErrNoSession
	}
	return &oauth2.Token{AccessToken: s.Token, TokenType: "Bearer"}, nil
}

// UserID returns the signed-in user's id, or "".
func (m *Manager) UserID() string {
	if s := m.Current(); s != nil {
		return s.User.ID
	}
	return ""
}

func (m *Manager) set(s service.Session) *service.Session {
	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()
	return m.Current()
}

// persistedUser returns the stored user, or nil when it is missing, corrupt
// or has no id.
func (m *Manager) persistedUser(ctx context.Context) *service.User {
	raw, ok, err := m.store.Get(storage.KeyUser)
	if err != nil {
		logging.Warn(ctx, "could not read stored user", "error", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	var u service.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.ID == "" {
		return nil
	}
	return &u
}

func (m *Manager) now() time.Time {
	if m.policy.Now != nil {
		return m.policy.Now()
	}
	return time.Now()
}

// StoredToken returns a TokenSource that reads the persisted token on every
// call, so a client built before sign-in picks the token up afterwards.
func StoredToken(store storage.Store) oauth2.TokenSource {
	return storedToken{store: store}
}

type storedToken struct {
	store storage.Store
}

func (s storedToken) Token() (*oauth2.Token, error) {
	token, ok, err := s.store.Get(storage.KeyToken)
	if err != nil {
		return nil, err
	}
	if !ok || token == "" {
		return nil, ErrNoSession
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// Claims are the unverified claims of a backend token.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// Expired reports whether the token had expired at now. Tokens without an
// exp claim never expire.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ParseClaims decodes a JWT without verifying its signature. Only the
// backend can verify; this is for display and the expiry pre-check.
func ParseClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, err
	}
	var c Claims
	c.Subject, _ = mc.GetSubject()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	c.Email, _ = mc["email"].(string)
	return c, nil
}

// IsOfflineToken reports whether token was minted locally.
func IsOfflineToken(token string) bool {
	return strings.HasPrefix(token, connectivity.OfflineTokenPrefix)
}
