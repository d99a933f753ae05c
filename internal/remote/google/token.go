// Package google implements the remote provider contracts against the
// Google Calendar and Google Tasks APIs, with an oauth2 token-file manager
// supplying auto-refreshing credentials.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/dayplanhq/dayplan/internal/remote"
)

// credentialsFile is the downloaded Google API client secret, placed in the
// manager's directory.
const credentialsFile = "credentials.json"

// Scopes requested for calendar and task sync.
var scopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
	tasks.TasksScope,
}

// Manager implements remote.TokenManager over per-user oauth2 token files.
//
// Tokens are stored as <dir>/<userID>.token.json. The manager builds one
// credential handle per user and caches it; an automatic refresh performed
// by the token source is persisted back to the file so other processes pick
// it up. Invalidate drops a cached handle, which the daemon calls when the
// token file changes on disk.
type Manager struct {
	dir    string
	logger *log.Logger

	mu      sync.Mutex
	cfg     *oauth2.Config
	handles map[string]*handle
}

// NewManager creates a token manager rooted at dir. The credentials.json
// client secret is read lazily on first remote use, so the manager can be
// built before the user has downloaded it and purely local commands never
// need it.
func NewManager(dir string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[google] ", log.LstdFlags)
	}

	return &Manager{
		dir:     dir,
		logger:  logger,
		handles: make(map[string]*handle),
	}
}

// clientConfig loads and caches the oauth2 client configuration. Load
// failures are not cached: the user can drop credentials.json in place and
// the next call picks it up.
func (m *Manager) clientConfig() (*oauth2.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg != nil {
		return m.cfg, nil
	}

	raw, err := os.ReadFile(filepath.Join(m.dir, credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read client credentials: %w", err)
	}

	cfg, err := oauthgoogle.ConfigFromJSON(raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client credentials: %w", err)
	}

	m.cfg = cfg
	return cfg, nil
}

// TokenPath returns the token file path for a user.
func (m *Manager) TokenPath(userID string) string {
	return filepath.Join(m.dir, userID+".token.json")
}

// HasTokens reports whether a token file exists for the user, even if its
// contents are currently unusable.
func (m *Manager) HasTokens(userID string) bool {
	_, err := os.Stat(m.TokenPath(userID))
	return err == nil
}

// StoreToken persists a token obtained from an external authorization flow
// and drops any cached handle so the next call uses it.
func (m *Manager) StoreToken(userID string, tok *oauth2.Token) error {
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(m.TokenPath(userID), raw, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	m.Invalidate(userID)
	return nil
}

// Invalidate drops the cached handle for a user. The next Credential call
// rebuilds it from the token file.
func (m *Manager) Invalidate(userID string) {
	m.mu.Lock()
	delete(m.handles, userID)
	m.mu.Unlock()
}

// Credential implements remote.TokenManager.
func (m *Manager) Credential(ctx context.Context, userID string) (remote.Handle, error) {
	m.mu.Lock()
	if h, ok := m.handles[userID]; ok {
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	cfg, err := m.clientConfig()
	if err != nil {
		// No client secret means the provider was never set up; callers
		// treat this the same as an account that never connected.
		return nil, fmt.Errorf("user %s: %w: %v", userID, remote.ErrNoTokens, err)
	}

	tok, err := m.readToken(userID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("user %s: %w", userID, remote.ErrNoTokens)
		}
		return nil, fmt.Errorf("user %s: %w: %v", userID, remote.ErrRefreshFailed, err)
	}

	// The handle outlives this call, so the token source is bound to the
	// background context rather than the caller's.
	src := m.persistingSource(userID, cfg.TokenSource(context.Background(), tok))

	// Force a refresh now so a dead refresh token surfaces here instead
	// of on the first remote call.
	if _, err := src.Token(); err != nil {
		return nil, fmt.Errorf("user %s: %w: %v", userID, remote.ErrRefreshFailed, err)
	}

	calSrv, err := calendar.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar service: %w", err)
	}
	taskSrv, err := tasks.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("failed to build tasks service: %w", err)
	}

	h := &handle{userID: userID, calendar: calSrv, tasks: taskSrv}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.handles[userID]; ok {
		return existing, nil
	}
	m.handles[userID] = h
	return h, nil
}

func (m *Manager) readToken(userID string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(m.TokenPath(userID))
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	return &tok, nil
}

// persistingSource wraps a token source so refreshed tokens are written
// back to the token file.
func (m *Manager) persistingSource(userID string, inner oauth2.TokenSource) oauth2.TokenSource {
	return &persistingSource{mgr: m, userID: userID, inner: oauth2.ReuseTokenSource(nil, inner)}
}

type persistingSource struct {
	mgr    *Manager
	userID string
	inner  oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.inner.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	changed := tok.AccessToken != p.last
	p.last = tok.AccessToken
	p.mu.Unlock()

	if changed {
		raw, err := json.Marshal(tok)
		if err == nil {
			if werr := os.WriteFile(p.mgr.TokenPath(p.userID), raw, 0600); werr != nil {
				p.mgr.logger.Printf("WARNING: failed to persist refreshed token for %s: %v", p.userID, werr)
			}
		}
	}

	return tok, nil
}

// handle is the opaque credential the sync engine threads through remote
// calls. It carries the authenticated API services for its user.
type handle struct {
	userID   string
	calendar *calendar.Service
	tasks    *tasks.Service
}

func (h *handle) UserID() string {
	return h.userID
}

// asHandle recovers the concrete handle from the interface value.
func asHandle(h remote.Handle) (*handle, error) {
	gh, ok := h.(*handle)
	if !ok {
		return nil, fmt.Errorf("handle %T was not issued by the google token manager", h)
	}
	return gh, nil
}
