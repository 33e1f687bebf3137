package session

import (
	"fmt"
	"sync"

	zkeyring "github.com/zalando/go-keyring"
)

// Keyring is the token storage interface.
type Keyring interface {
	Set(service, account, token string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// systemKeyring stores tokens in the OS-native keyring.
type systemKeyring struct{}

func (systemKeyring) Set(service, account, token string) error {
	return zkeyring.Set(service, account, token)
}

func (systemKeyring) Get(service, account string) (string, error) {
	token, err := zkeyring.Get(service, account)
	if err != nil {
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return token, nil
}

func (systemKeyring) Delete(service, account string) error {
	err := zkeyring.Delete(service, account)
	if err == zkeyring.ErrNotFound {
		return nil
	}
	return err
}

// MockKeyring is an in-memory Keyring for tests.
type MockKeyring struct {
	mu    sync.RWMutex
	store map[string]map[string]string // service -> account -> token
}

// NewMockKeyring creates an empty mock keyring.
func NewMockKeyring() *MockKeyring {
	return &MockKeyring{store: make(map[string]map[string]string)}
}

// Set implements Keyring.
func (m *MockKeyring) Set(service, account, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store[service] == nil {
		m.store[service] = make(map[string]string)
	}
	m.store[service][account] = token
	return nil
}

// Get implements Keyring.
func (m *MockKeyring) Get(service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if token, ok := m.store[service][account]; ok {
		return token, nil
	}
	return "", fmt.Errorf("token not found for %s/%s", service, account)
}

// Delete implements Keyring.
func (m *MockKeyring) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store[service], account)
	return nil
}
