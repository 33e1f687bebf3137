// Package session tracks which account the client is logged into and
// where its bearer token lives. The account name and server URL sit in
// the local store; the token goes to the OS keyring, with an
// environment-variable fallback for headless machines.
package session

import (
	"context"
	"fmt"
	"os"
	"strings"

	"dayplan/internal/localstore"
)

const keyringService = "dayplan"

// TokenEnvVar overrides the keyring when set. Headless machines and CI
// have no keyring daemon to talk to.
const TokenEnvVar = "DAYPLAN_TOKEN"

const (
	stateAccount   = "session.account"
	stateServerURL = "session.server_url"
)

// Session is an active login.
type Session struct {
	Account   string
	ServerURL string
	Token     string
}

// Manager reads and writes the active session.
type Manager struct {
	store   *localstore.Store
	keyring Keyring
}

// Option configures a Manager.
type Option func(*Manager)

// WithKeyring substitutes the keyring implementation (for tests).
func WithKeyring(k Keyring) Option {
	return func(m *Manager) { m.keyring = k }
}

// NewManager creates a session manager over the local store.
func NewManager(store *localstore.Store, opts ...Option) *Manager {
	m := &Manager{store: store, keyring: systemKeyring{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Save records a login: account and server URL in the local store, the
// token in the keyring.
func (m *Manager) Save(ctx context.Context, s Session) error {
	if s.Account == "" || s.ServerURL == "" || s.Token == "" {
		return fmt.Errorf("account, server URL, and token are all required")
	}
	if err := m.keyring.Set(keyringService, s.Account, s.Token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	if err := m.store.SetState(ctx, stateAccount, s.Account); err != nil {
		return fmt.Errorf("failed to record session account: %w", err)
	}
	if err := m.store.SetState(ctx, stateServerURL, strings.TrimRight(s.ServerURL, "/")); err != nil {
		return fmt.Errorf("failed to record server URL: %w", err)
	}
	return nil
}

// Current returns the active session. The second return is false when
// no account is logged in (guest mode).
func (m *Manager) Current(ctx context.Context) (Session, bool, error) {
	account, err := m.store.State(ctx, stateAccount, "")
	if err != nil {
		return Session{}, false, fmt.Errorf("failed to read session state: %w", err)
	}
	if account == "" {
		return Session{}, false, nil
	}
	serverURL, err := m.store.State(ctx, stateServerURL, "")
	if err != nil {
		return Session{}, false, fmt.Errorf("failed to read session state: %w", err)
	}

	s := Session{Account: account, ServerURL: serverURL}
	if env := os.Getenv(TokenEnvVar); env != "" {
		s.Token = env
		return s, true, nil
	}
	token, err := m.keyring.Get(keyringService, account)
	if err != nil {
		return Session{}, false, fmt.Errorf("logged in as %s but no token available: %w", account, err)
	}
	s.Token = token
	return s, true, nil
}

// Clear logs out: the token leaves the keyring and the session state is
// reset. Clearing an absent session is a no-op.
func (m *Manager) Clear(ctx context.Context) error {
	account, err := m.store.State(ctx, stateAccount, "")
	if err != nil {
		return fmt.Errorf("failed to read session state: %w", err)
	}
	if account == "" {
		return nil
	}
	if err := m.keyring.Delete(keyringService, account); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	if err := m.store.SetState(ctx, stateAccount, ""); err != nil {
		return fmt.Errorf("failed to clear session account: %w", err)
	}
	return m.store.SetState(ctx, stateServerURL, "")
}
