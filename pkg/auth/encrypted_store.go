package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize         = 32
	keySize          = 32
	iterations       = 100000
	tokenFileVersion = 1
)

// EncryptedFileStore keeps mirror tokens in a single file. The host to token
// map is sealed with AES-GCM under a PBKDF2 key derived from the passphrase.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// tokenFile is the on-disk envelope. Only Sealed carries token material.
type tokenFile struct {
	Version  int       `json:"version"`
	Salt     string    `json:"salt"`
	Sealed   string    `json:"encrypted"`
	Modified time.Time `json:"modified"`
}

// hostTokens is the decrypted content of a token file
type hostTokens map[string]MirrorToken

// NewEncryptedFileStore opens the token file at path. The file itself is
// created on the first Store.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	passphrase, err := loadPassphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

// Store saves the token for its host, replacing any previous one
func (e *EncryptedFileStore) Store(token *MirrorToken) error {
	if token == nil || token.Host == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, salt, err := e.open()
	switch {
	case os.IsNotExist(err):
		tokens = hostTokens{}
	case err != nil:
		return err
	}

	tokens[token.Host] = *token
	return e.seal(tokens, salt)
}

// Retrieve returns the token stored for host
func (e *EncryptedFileStore) Retrieve(host string) (*MirrorToken, error) {
	if host == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	tokens, _, err := e.open()
	if os.IsNotExist(err) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, err
	}

	token, ok := tokens[host]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &token, nil
}

// List returns one entry per host in the file
func (e *EncryptedFileStore) List() ([]*MirrorToken, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tokens, _, err := e.open()
	if os.IsNotExist(err) {
		return []*MirrorToken{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]*MirrorToken, 0, len(tokens))
	for host := range tokens {
		token := tokens[host]
		out = append(out, &token)
	}
	return out, nil
}

// Delete forgets the token for host. The file goes away with the last host.
func (e *EncryptedFileStore) Delete(host string) error {
	if host == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, salt, err := e.open()
	if os.IsNotExist(err) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return err
	}
	if _, ok := tokens[host]; !ok {
		return ErrCredentialsNotFound
	}

	delete(tokens, host)
	if len(tokens) == 0 {
		return os.Remove(e.path)
	}
	return e.seal(tokens, salt)
}

// Exists reports whether a token is stored for host
func (e *EncryptedFileStore) Exists(host string) bool {
	token, err := e.Retrieve(host)
	return err == nil && token != nil
}

// open reads and decrypts the token file. A missing file is returned as an
// os.IsNotExist error so callers can tell it from a corrupt one.
func (e *EncryptedFileStore) open() (hostTokens, []byte, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		return nil, nil, err
	}

	var file tokenFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(file.Sealed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode token data: %w", err)
	}

	plain, err := decrypt(sealed, e.key(salt))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt token file: %w", err)
	}

	tokens := hostTokens{}
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return nil, nil, fmt.Errorf("failed to parse tokens: %w", err)
	}
	return tokens, salt, nil
}

// seal encrypts tokens and replaces the file atomically. A nil salt starts a
// new file with a fresh one.
func (e *EncryptedFileStore) seal(tokens hostTokens, salt []byte) error {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plain, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	sealed, err := encrypt(plain, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	content, err := json.MarshalIndent(tokenFile{
		Version:  tokenFileVersion,
		Salt:     base64.StdEncoding.EncodeToString(salt),
		Sealed:   base64.StdEncoding.EncodeToString(sealed),
		Modified: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token file: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

// loadPassphrase prefers COLLECTORDL_PASSPHRASE, then a generated passphrase
// kept next to the config.
func loadPassphrase() (string, error) {
	if pass := os.Getenv("COLLECTORDL_PASSPHRASE"); pass != "" {
		return pass, nil
	}

	configDir, err := getConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(configDir, ".passphrase")

	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(raw)

	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

func encrypt(plain, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func decrypt(sealed, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("token data too short")
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
