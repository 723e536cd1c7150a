// Package credential keeps account passwords and OAuth2 tokens in the
// system keyring.
package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
	"github.com/altafino/attachment-fetcher/internal/types"
)

const serviceName = "attachment-fetcher"

// ErrNotFound is returned when no credential is stored under a key.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes secrets by key.
type Store struct {
	ring keyring.Keyring
}

// Open opens the system keyring. dir holds the encrypted file backend used
// when no OS keyring is available.
func Open(dir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys.
func (s *Store) Keys() ([]string, error) {
	keys, err := s.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	return keys, nil
}

// PasswordKey is the keyring key of a profile's account password.
func PasswordKey(cfg *types.Config) string {
	if cfg.Account.PasswordKey != "" {
		return cfg.Account.PasswordKey
	}
	return "password:" + cfg.Meta.ID
}

// TokenKey is the keyring key of a profile's OAuth2 token.
func TokenKey(configID string) string {
	return "oauth2:" + configID
}

// Password returns the account password: the inline value when set,
// otherwise the keyring entry. A missing keyring entry yields "".
func (s *Store) Password(cfg *types.Config) (string, error) {
	if cfg.Account.Password != "" {
		return cfg.Account.Password, nil
	}
	if s == nil {
		return "", nil
	}
	password, err := s.Get(PasswordKey(cfg))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return password, err
}
