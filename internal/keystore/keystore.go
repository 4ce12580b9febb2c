// Package keystore stores the TMDB API key outside the environment so a
// key entered once survives restarts. A plaintext env/config value acts as
// the first-run fallback and is migrated into the store on startup.
package keystore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when no key has been stored.
var ErrNotFound = errors.New("keystore: no API key stored")

// Store is a secure key-value store for the single API-key secret.
type Store interface {
	Get() (string, error)
	Set(key string) error
	Delete() error
}

type fileRecord struct {
	APIKey string `json:"api_key"`
}

// FileStore keeps the key in a mode-0600 JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", err
	}
	if rec.APIKey == "" {
		return "", ErrNotFound
	}
	return rec.APIKey, nil
}

func (s *FileStore) Set(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(fileRecord{APIKey: key})
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Resolve returns the stored API key, falling back to the plaintext config
// value and migrating it into the store on first run.
func Resolve(s Store, configKey string) (string, error) {
	key, err := s.Get()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if configKey == "" {
		return "", ErrNotFound
	}
	if err := s.Set(configKey); err != nil {
		return "", err
	}
	return configKey, nil
}
