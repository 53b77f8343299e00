package auth

import (
	"fmt"
	"sync"
)

// MockStore implements CredentialStore for testing purposes
type MockStore struct {
	tokens map[string]*MirrorToken
	mu     sync.RWMutex

	// Error injection for testing
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock credential store
func NewMockStore() *MockStore {
	return &MockStore{
		tokens: make(map[string]*MirrorToken),
	}
}

// Store saves a token to the mock store
func (m *MockStore) Store(token *MirrorToken) error {
	if m.StoreError != nil {
		return m.StoreError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if token == nil || token.Host == "" {
		return ErrInvalidCredentials
	}

	// Create a copy to avoid external modifications
	tokenCopy := *token
	m.tokens[token.Host] = &tokenCopy

	return nil
}

// Retrieve gets a token from the mock store
func (m *MockStore) Retrieve(host string) (*MirrorToken, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if host == "" {
		return nil, ErrInvalidCredentials
	}

	token, exists := m.tokens[host]
	if !exists {
		return nil, ErrCredentialsNotFound
	}

	tokenCopy := *token
	return &tokenCopy, nil
}

// List returns all stored tokens from the mock store
func (m *MockStore) List() ([]*MirrorToken, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var tokens []*MirrorToken
	for _, token := range m.tokens {
		tokenCopy := *token
		tokens = append(tokens, &tokenCopy)
	}

	return tokens, nil
}

// Delete removes a token from the mock store
func (m *MockStore) Delete(host string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if host == "" {
		return ErrInvalidCredentials
	}

	if _, exists := m.tokens[host]; !exists {
		return ErrCredentialsNotFound
	}

	delete(m.tokens, host)
	return nil
}

// Exists checks if a token exists in the mock store
func (m *MockStore) Exists(host string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.tokens[host]
	return exists
}

// Count returns the number of tokens in the mock store
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.tokens)
}

// NewMockManager creates a Manager with a mock store for testing
func NewMockManager() (*Manager, *MockStore) {
	mockStore := NewMockStore()
	manager := &Manager{
		stores: []CredentialStore{mockStore},
	}
	return manager, mockStore
}

// NewMockManagerWithStores creates a Manager with multiple stores for testing
func NewMockManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{
		stores: stores,
	}
}

// GetToken returns a copy of the stored token for inspection
func (m *MockStore) GetToken(host string) (*MirrorToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, exists := m.tokens[host]
	if !exists {
		return nil, fmt.Errorf("token not found: %s", host)
	}

	tokenCopy := *token
	return &tokenCopy, nil
}
