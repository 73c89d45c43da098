package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNoIdentity is returned by Load when no player ID has been saved
var ErrNoIdentity = errors.New("no saved player identity")

// Store persists the single opaque player ID assigned by the server
type Store interface {
	Load() (string, error)
	Save(playerID string) error
	Clear() error
}

type identityFile struct {
	PlayerID string `yaml:"player_id"`
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// FileStore keeps the player ID in a small YAML file
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns ~/.stopify/identity.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".stopify", "identity.yaml")
	}
	return filepath.Join(home, ".stopify", "identity.yaml")
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoIdentity
		}
		return "", fmt.Errorf("read identity file: %w", err)
	}

	var f identityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("parse identity file: %w", err)
	}
	if strings.TrimSpace(f.PlayerID) == "" {
		return "", ErrNoIdentity
	}
	return f.PlayerID, nil
}

func (s *FileStore) Save(playerID string) error {
	if strings.TrimSpace(playerID) == "" {
		return errors.New("player id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(identityFile{PlayerID: playerID})
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace identity file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove identity file: %w", err)
	}
	return nil
}

// MemoryStore is a Store that lives only as long as the process
type MemoryStore struct {
	mu       sync.Mutex
	playerID string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playerID == "" {
		return "", ErrNoIdentity
	}
	return s.playerID, nil
}

func (s *MemoryStore) Save(playerID string) error {
	if strings.TrimSpace(playerID) == "" {
		return errors.New("player id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerID = playerID
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerID = ""
	return nil
}
