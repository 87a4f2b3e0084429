package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/ggoodman/storefront-go/api"
	"github.com/ggoodman/storefront-go/internal/logctx"
	"github.com/ggoodman/storefront-go/storage"
)

const (
	LoginPath   = "/auth/login"
	RefreshPath = "/auth/refresh"
	LogoutPath  = "/auth/logout"
	MePath      = "/auth/me"

	// MarkerKey is the storage key of the has-session marker.
	MarkerKey = "has_session"

	// MiddlewareName is the name the session middleware is installed under.
	MiddlewareName = "session"

	markerValue = "1"
)

var (
	// ErrInvalidCredentials is the only error Login reports for rejected
	// credentials, whichever of email or password was wrong.
	ErrInvalidCredentials = errors.New("session: invalid credentials")

	// ErrNotAuthenticated is returned by Authorize when no session is held.
	ErrNotAuthenticated = errors.New("session: not authenticated")

	// ErrBooting is returned by Authorize until Boot has finished.
	ErrBooting = errors.New("session: still booting")

	// ErrForbidden is returned by Authorize when the user's role is not
	// allowed.
	ErrForbidden = errors.New("session: forbidden")

	// ErrNoAccessToken is returned when /auth/refresh succeeds without a
	// token in its body.
	ErrNoAccessToken = errors.New("session: refresh returned no access token")
)

// DefaultAdminRoles are the roles admitted to admin operations.
var DefaultAdminRoles = []string{"Administrador", "Cliente"}

// Manager owns the session state. It is safe for concurrent use.
type Manager struct {
	client *api.Client
	store  storage.Storage
	log    *slog.Logger

	mu    sync.RWMutex
	state State
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// New creates a Manager in the Booting phase and installs its middleware on
// client. A client accepts one session middleware; a second New on the same
// client fails with api.ErrAlreadyInstalled.
func New(client *api.Client, store storage.Storage, opts ...Option) (*Manager, error) {
	if client == nil {
		return nil, errors.New("session: nil client")
	}
	if store == nil {
		return nil, errors.New("session: nil storage")
	}

	m := &Manager{
		client: client,
		store:  store,
		state:  State{Bootstrapping: true},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = logctx.Wrap(m.log)

	if err := client.Use(MiddlewareName, m.middleware); err != nil {
		return nil, fmt.Errorf("session: install middleware: %w", err)
	}
	return m, nil
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Phase returns the current phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Phase()
}

// User returns a copy of the current user, or nil.
func (m *Manager) User() *User {
	return m.State().User
}

// TokenExpiry reports the exp claim of the held access token. Opaque tokens
// and anonymous sessions report false.
func (m *Manager) TokenExpiry() (time.Time, bool) {
	m.mu.RLock()
	tok := m.state.AccessToken
	m.mu.RUnlock()
	return tokenExpiry(tok)
}

// Boot restores a previous session if the marker is present. Failures are
// not returned: they leave the manager Anonymous with the marker cleared,
// and anything other than a 401 is logged. Boot returns the resulting phase.
func (m *Manager) Boot(ctx context.Context) Phase {
	m.mu.Lock()
	m.state.Bootstrapping = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.state.Bootstrapping = false
		m.mu.Unlock()
	}()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{Phase: Booting.String()})

	item, err := m.store.Get(ctx, MarkerKey)
	if err != nil {
		m.log.ErrorContext(ctx, "session.boot.marker_read_failed", slog.String("err", err.Error()))
		return Anonymous
	}
	if item == nil || string(item.Data) != markerValue {
		m.log.DebugContext(ctx, "session.boot.no_marker")
		return Anonymous
	}

	user, err := m.restore(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Abandoned by the caller; the server-side session may still be
			// valid so the marker stays.
			m.clearState()
			return Anonymous
		}
		m.clear(ctx)
		if !api.IsUnauthorized(err) {
			m.log.ErrorContext(ctx, "session.boot.failed", slog.String("err", err.Error()))
		} else {
			m.log.DebugContext(ctx, "session.boot.expired")
		}
		return Anonymous
	}

	m.log.InfoContext(ctx, "session.boot.restored", slog.Int64("user_id", user.ID))
	return Authenticated
}

func (m *Manager) restore(ctx context.Context) (*User, error) {
	if _, err := m.refresh(ctx); err != nil {
		return nil, err
	}

	var me struct {
		User *User `json:"user"`
	}
	if err := m.client.GetJSON(ctx, MePath, &me); err != nil {
		return nil, err
	}
	if me.User == nil {
		return nil, fmt.Errorf("%w: no user in %s", api.ErrMalformedResponse, MePath)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.AccessToken == "" {
		// Cleared while /auth/me was in flight.
		return nil, fmt.Errorf("%w: session cleared during restore", api.ErrUnauthorized)
	}
	m.state.User = me.User
	return me.User, nil
}

// Login exchanges credentials for a session. Rejected credentials (400, 401
// or 403) yield ErrInvalidCredentials; other failures are returned as-is.
// A 401 leaves the manager Anonymous; other failures leave it unchanged.
func (m *Manager) Login(ctx context.Context, email, password string) (*User, error) {
	req, err := api.NewJSONRequest(http.MethodPost, LoginPath, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(ctx, req)
	if err != nil {
		switch api.Status(err) {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			m.log.InfoContext(ctx, "session.login.rejected", slog.Int("status", api.Status(err)))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	var out struct {
		AccessToken string `json:"accessToken"`
		User        *User  `json:"user"`
	}
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" || out.User == nil {
		return nil, fmt.Errorf("%w: login response missing token or user", api.ErrMalformedResponse)
	}

	m.mu.Lock()
	m.state.AccessToken = out.AccessToken
	m.state.User = out.User
	m.mu.Unlock()

	if err := m.store.Set(ctx, MarkerKey, []byte(markerValue)); err != nil {
		m.log.WarnContext(ctx, "session.marker.write_failed", slog.String("err", err.Error()))
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{UserID: strconv.FormatInt(out.User.ID, 10), Phase: Authenticated.String()})
	m.log.InfoContext(ctx, "session.login.ok")

	u := *out.User
	return &u, nil
}

// Logout ends the session. The server call is best-effort; token, user and
// marker are always cleared.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.client.PostJSON(ctx, LogoutPath, nil, nil); err != nil {
		m.log.DebugContext(ctx, "session.logout.server_failed", slog.String("err", err.Error()))
	}
	m.clear(ctx)
	m.log.InfoContext(ctx, "session.logout")
}

// Authorize checks the current user against roles. An empty roles list
// admits any authenticated user.
func (m *Manager) Authorize(roles ...string) error {
	s := m.State()
	switch {
	case s.Bootstrapping:
		return ErrBooting
	case !s.Authenticated():
		return ErrNotAuthenticated
	case len(roles) > 0 && !slices.Contains(roles, s.User.Role):
		return fmt.Errorf("%w: role %q", ErrForbidden, s.User.Role)
	}
	return nil
}

// AuthorizeAdmin is Authorize(DefaultAdminRoles...).
func (m *Manager) AuthorizeAdmin() error { return m.Authorize(DefaultAdminRoles...) }

// refresh calls /auth/refresh through the client and stores the new token.
func (m *Manager) refresh(ctx context.Context) (string, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := m.client.PostJSON(ctx, RefreshPath, nil, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", ErrNoAccessToken
	}

	m.mu.Lock()
	m.state.AccessToken = out.AccessToken
	m.mu.Unlock()
	return out.AccessToken, nil
}

func (m *Manager) token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.AccessToken
}

func (m *Manager) clearState() {
	m.mu.Lock()
	m.state.AccessToken = ""
	m.state.User = nil
	m.mu.Unlock()
}

// clear drops token and user and removes the marker.
func (m *Manager) clear(ctx context.Context) {
	m.clearState()
	if err := m.store.Delete(context.WithoutCancel(ctx), MarkerKey); err != nil {
		m.log.WarnContext(ctx, "session.marker.delete_failed", slog.String("err", err.Error()))
	}
}
