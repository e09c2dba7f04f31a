package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sqlgym/internal/shared"
	"github.com/desertthunder/sqlgym/internal/storage"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Storage keys shared by the local store and the cookie jar.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
	UserInfoKey     = "user_info"
	UserIDKey       = "user_id"
)

// DefaultSweepInterval is how often [Manager.Sweep] re-checks token validity.
const DefaultSweepInterval = 30 * time.Second

// Cookies is the cookie storage a [Manager] mirrors tokens into. [storage.CookieJar] implements it.
type Cookies interface {
	Get(name string) string
	Set(name, value string) error
	Delete(name string) error
}

// Notifier receives the terminal session expiry signal.
type Notifier interface {
	SessionExpired(reason error)
	RedirectToLogin()
}

// Options configures a [Manager].
type Options struct {
	Store         storage.Store
	Cookies       Cookies
	Renewer       Renewer
	Notifier      Notifier
	Logger        *log.Logger
	SweepInterval time.Duration
}

// Manager provides bearer credentials and keeps the store and cookie copies consistent.
type Manager struct {
	store         storage.Store
	cookies       Cookies
	renewer       Renewer
	notifier      Notifier
	logger        *log.Logger
	sweepInterval time.Duration

	mu      sync.Mutex // serializes writes across store and cookie
	flight  singleflight.Group
	expired atomic.Bool
}

// NewManager creates a [Manager]. Store and Cookies are required.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil || opts.Cookies == nil {
		return nil, fmt.Errorf("%w: session manager requires a store and cookie jar", shared.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Notifier == nil {
		opts.Notifier = NewLogNotifier(opts.Logger, nil)
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}

	return &Manager{
		store:         opts.Store,
		cookies:       opts.Cookies,
		renewer:       opts.Renewer,
		notifier:      opts.Notifier,
		logger:        shared.WithLogger(opts.Logger, "component", "session"),
		sweepInterval: opts.SweepInterval,
	}, nil
}

// AccessToken returns the current access token, or "" when none is stored.
func (m *Manager) AccessToken() string {
	return m.read(AccessTokenKey)
}

// RefreshToken returns the current refresh token, or "" when none is stored.
func (m *Manager) RefreshToken() string {
	return m.read(RefreshTokenKey)
}

// read looks in the local store, then the cookie, backfilling the store from the cookie.
// Finding a value after expiry re-arms notification once the pair is complete.
func (m *Manager) read(key string) string {
	v, err := m.store.Get(key)
	if err != nil {
		m.logger.Warn("failed to read local store", "key", key, "error", err)
	}
	if v = shared.Unquote(v); v != "" {
		m.rearm()
		return v
	}

	v = shared.Unquote(m.cookies.Get(key))
	if v == "" {
		return ""
	}

	if err := m.store.Set(key, v); err != nil {
		m.logger.Warn("failed to backfill local store", "key", key, "error", err)
	}
	m.rearm()
	return v
}

// HasValidTokens reports whether both tokens are present. Token contents are not inspected.
func (m *Manager) HasValidTokens() bool {
	return m.AccessToken() != "" && m.RefreshToken() != ""
}

// SetTokens stores a new pair in both locations. An empty refresh keeps the existing refresh token.
//
// Storing a pair re-arms expiry notification.
func (m *Manager) SetTokens(access, refresh string) error {
	access, refresh = shared.Unquote(access), shared.Unquote(refresh)
	if access == "" {
		return fmt.Errorf("%w: access token is empty", shared.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	errs := []error{m.write(AccessTokenKey, access)}
	if refresh != "" {
		errs = append(errs, m.write(RefreshTokenKey, refresh))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	m.expired.Store(false)
	return nil
}

func (m *Manager) write(key, value string) error {
	if err := m.store.Set(key, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	if err := m.cookies.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s cookie: %w", key, err)
	}
	return nil
}

// ClearTokens removes both tokens and the cached profile from every location. It is idempotent.
func (m *Manager) ClearTokens() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearLocked()
}

func (m *Manager) clearLocked() error {
	var errs []error
	for _, key := range []string{AccessTokenKey, RefreshTokenKey, UserInfoKey, UserIDKey} {
		if err := m.store.Remove(key); err != nil {
			errs = append(errs, err)
		}
	}
	for _, key := range []string{AccessTokenKey, RefreshTokenKey} {
		if err := m.cookies.Delete(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InitializeFromCookies copies each token that exists in only one location into the other.
//
// When both locations hold a value they are left as they are.
func (m *Manager) InitializeFromCookies() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, key := range []string{AccessTokenKey, RefreshTokenKey} {
		local, err := m.store.Get(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		local = shared.Unquote(local)
		cookie := shared.Unquote(m.cookies.Get(key))

		switch {
		case local == "" && cookie != "":
			errs = append(errs, m.store.Set(key, cookie))
		case local != "" && cookie == "":
			errs = append(errs, m.cookies.Set(key, local))
		}
	}
	return errors.Join(errs...)
}

// Token implements [oauth2.TokenSource] over the stored pair.
func (m *Manager) Token() (*oauth2.Token, error) {
	access := m.AccessToken()
	if access == "" {
		return nil, shared.ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: access, RefreshToken: m.RefreshToken(), TokenType: "Bearer"}, nil
}

// SetUserID caches the signed-in user's id so push topics can be derived without a profile request.
func (m *Manager) SetUserID(id string) error {
	return m.store.Set(UserIDKey, id)
}

// UserID returns the cached user id, or "".
func (m *Manager) UserID() string {
	v, err := m.store.Get(UserIDKey)
	if err != nil {
		m.logger.Warn("failed to read local store", "key", UserIDKey, "error", err)
	}
	return shared.Unquote(v)
}
