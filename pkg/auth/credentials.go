package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// MirrorToken is an API token for one mirror host
type MirrorToken struct {
	Host         string    `json:"host"`
	Token        string    `json:"token"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving mirror tokens
type CredentialStore interface {
	// Store saves the token for its host
	Store(token *MirrorToken) error

	// Retrieve gets the token for a host
	Retrieve(host string) (*MirrorToken, error)

	// List returns all stored tokens
	List() ([]*MirrorToken, error)

	// Delete removes the token for a host
	Delete(host string) error

	// Exists checks if a token exists for a host
	Exists(host string) bool
}

// Manager handles token storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a new credential manager with appropriate storage backends
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	// Try keyring first (system keychain)
	keyringStore, err := NewKeyringStore()
	if err == nil {
		stores = append(stores, keyringStore)
	}

	// Always add encrypted file store as fallback
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "tokens.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	// Environment variables are read-only and checked last
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NormalizeHost lower-cases a host and strips any scheme, path, or port
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}

// Store saves a token using the first store that accepts it
func (m *Manager) Store(token *MirrorToken) error {
	if token == nil {
		return ErrInvalidCredentials
	}
	token.Host = NormalizeHost(token.Host)
	if token.Host == "" {
		return errors.New("host is required")
	}
	if token.Token == "" {
		return errors.New("token is required")
	}

	token.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(token); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store token: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets the token from the first store that has it
func (m *Manager) Retrieve(host string) (*MirrorToken, error) {
	host = NormalizeHost(host)
	for _, store := range m.stores {
		if token, err := store.Retrieve(host); err == nil && token != nil {
			return token, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, host)
}

// Token returns the bearer token for host, or "" when none is stored.
// Manager satisfies mirror.TokenSource.
func (m *Manager) Token(host string) (string, error) {
	token, err := m.Retrieve(host)
	if errors.Is(err, ErrCredentialsNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token.Token, nil
}

// List returns all stored tokens from all stores, sorted by host
func (m *Manager) List() ([]*MirrorToken, error) {
	tokenMap := make(map[string]*MirrorToken)

	for _, store := range m.stores {
		tokens, err := store.List()
		if err != nil {
			continue
		}
		for _, token := range tokens {
			// Use the most recently modified version
			if existing, ok := tokenMap[token.Host]; !ok || token.LastModified.After(existing.LastModified) {
				tokenMap[token.Host] = token
			}
		}
	}

	result := make([]*MirrorToken, 0, len(tokenMap))
	for _, token := range tokenMap {
		result = append(result, token)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Host < result[j].Host })

	return result, nil
}

// Delete removes the token for host from all stores
func (m *Manager) Delete(host string) error {
	host = NormalizeHost(host)
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(host); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete token: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrCredentialsNotFound, host)
	}

	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "collectordl")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "collectordl")
	default: // Linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "collectordl")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "collectordl")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeToken creates a copy of the token with the secret masked
func SanitizeToken(token *MirrorToken) *MirrorToken {
	if token == nil {
		return nil
	}

	return &MirrorToken{
		Host:         token.Host,
		Token:        maskString(token.Token),
		LastModified: token.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
