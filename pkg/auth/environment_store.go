package auth

import (
	"os"
	"strings"
	"time"
)

// envPrefix starts every token variable, e.g. COLLECTORDL_TOKEN_CATBOY_BEST
const envPrefix = "COLLECTORDL_TOKEN_"

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// EnvVar returns the variable name holding the token for host
func EnvVar(host string) string {
	var b strings.Builder
	b.WriteString(envPrefix)
	for _, r := range strings.ToUpper(host) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(token *MirrorToken) error {
	return ErrStoreUnavailable
}

// Retrieve gets a token from the environment
func (e *EnvironmentStore) Retrieve(host string) (*MirrorToken, error) {
	if host == "" {
		return nil, ErrInvalidCredentials
	}

	value := os.Getenv(EnvVar(host))
	if value == "" {
		return nil, ErrCredentialsNotFound
	}

	return &MirrorToken{
		Host:         host,
		Token:        value,
		LastModified: time.Time{},
	}, nil
}

// List returns one entry per token variable. Hosts are reported as the
// lower-cased variable suffix since the original punctuation is lost.
func (e *EnvironmentStore) List() ([]*MirrorToken, error) {
	var tokens []*MirrorToken
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		tokens = append(tokens, &MirrorToken{
			Host:  strings.ToLower(strings.TrimPrefix(key, envPrefix)),
			Token: value,
		})
	}
	return tokens, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(host string) error {
	return ErrStoreUnavailable
}

// Exists checks if a token variable is set for host
func (e *EnvironmentStore) Exists(host string) bool {
	return host != "" && os.Getenv(EnvVar(host)) != ""
}
