package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "collectordl"
	keyringPrefix  = "mirror_"
	// keyringIndex holds the JSON list of hosts, since keyrings cannot enumerate
	keyringIndex = "hosts"
)

// KeyringStore implements CredentialStore using the system keychain
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore creates a new keyring-based credential store
func NewKeyringStore() (*KeyringStore, error) {
	// Test if keyring is available
	testKey := "test_availability"
	err := keyring.Set(keyringService, testKey, "test")
	if err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves a token to the system keychain
func (k *KeyringStore) Store(token *MirrorToken) error {
	if token == nil || token.Host == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(keyringService, keyringPrefix+token.Host, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return k.updateIndex(token.Host, true)
}

// Retrieve gets a token from the system keychain
func (k *KeyringStore) Retrieve(host string) (*MirrorToken, error) {
	if host == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+host)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var token MirrorToken
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// List returns all tokens named in the host index
func (k *KeyringStore) List() ([]*MirrorToken, error) {
	k.mu.Lock()
	hosts, err := k.readIndex()
	k.mu.Unlock()
	if err != nil {
		return nil, err
	}

	tokens := make([]*MirrorToken, 0, len(hosts))
	for _, host := range hosts {
		token, err := k.Retrieve(host)
		if err != nil {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// Delete removes a token from the system keychain
func (k *KeyringStore) Delete(host string) error {
	if host == "" {
		return ErrInvalidCredentials
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	err := keyring.Delete(keyringService, keyringPrefix+host)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	return k.updateIndex(host, false)
}

// Exists checks if a token exists in the keychain
func (k *KeyringStore) Exists(host string) bool {
	if host == "" {
		return false
	}

	_, err := keyring.Get(keyringService, keyringPrefix+host)
	return err == nil
}

// readIndex must be called with k.mu held
func (k *KeyringStore) readIndex() ([]string, error) {
	data, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}

	var hosts []string
	if err := json.Unmarshal([]byte(data), &hosts); err != nil {
		return nil, fmt.Errorf("failed to parse keyring index: %w", err)
	}
	return hosts, nil
}

// updateIndex must be called with k.mu held
func (k *KeyringStore) updateIndex(host string, present bool) error {
	hosts, err := k.readIndex()
	if err != nil {
		return err
	}

	set := make(map[string]struct{}, len(hosts)+1)
	for _, h := range hosts {
		set[h] = struct{}{}
	}
	if present {
		set[host] = struct{}{}
	} else {
		delete(set, host)
	}

	updated := make([]string, 0, len(set))
	for h := range set {
		updated = append(updated, h)
	}
	sort.Strings(updated)

	data, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("failed to marshal keyring index: %w", err)
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring index: %w", err)
	}
	return nil
}
