package oauth2

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/altafino/attachment-fetcher/internal/credential"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned when no token is stored for an account.
var ErrNoToken = errors.New("no oauth2 token stored")

// TokenStore persists tokens by account id.
type TokenStore interface {
	Load(accountID string) (*oauth2.Token, error)
	Save(accountID string, token *oauth2.Token) error
	Delete(accountID string) error
	List() ([]string, error)
}

// NewTokenStore returns the store named by kind: "file" (default) or
// "keyring".
func NewTokenStore(kind, dir string, creds *credential.Store) (TokenStore, error) {
	switch kind {
	case "", "file":
		return NewFileTokenStore(dir)
	case "keyring":
		if creds == nil {
			return nil, fmt.Errorf("keyring token store requires a credential store")
		}
		return &KeyringTokenStore{creds: creds}, nil
	default:
		return nil, fmt.Errorf("unsupported token store: %s", kind)
	}
}

// FileTokenStore keeps one JSON file per account.
type FileTokenStore struct {
	dir string
}

func NewFileTokenStore(dir string) (*FileTokenStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("token storage path is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token directory: %w", err)
	}
	return &FileTokenStore{dir: dir}, nil
}

func (s *FileTokenStore) path(accountID string) string {
	return filepath.Join(s.dir, accountID+".json")
}

func (s *FileTokenStore) Load(accountID string) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path(accountID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

func (s *FileTokenStore) Save(accountID string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(s.path(accountID), data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Delete(accountID string) error {
	if err := os.Remove(s.path(accountID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read token directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	return ids, nil
}

// KeyringTokenStore keeps tokens as JSON in the credential store.
type KeyringTokenStore struct {
	creds *credential.Store
}

func (s *KeyringTokenStore) Load(accountID string) (*oauth2.Token, error) {
	data, err := s.creds.Get(credential.TokenKey(accountID))
	if errors.Is(err, credential.ErrNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

func (s *KeyringTokenStore) Save(accountID string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	return s.creds.Set(credential.TokenKey(accountID), string(data))
}

func (s *KeyringTokenStore) Delete(accountID string) error {
	return s.creds.Delete(credential.TokenKey(accountID))
}

func (s *KeyringTokenStore) List() ([]string, error) {
	keys, err := s.creds.Keys()
	if err != nil {
		return nil, err
	}
	prefix := credential.TokenKey("")
	var ids []string
	for _, k := range keys {
		if id, ok := strings.CutPrefix(k, prefix); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
