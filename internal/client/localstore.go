package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Store keys mirrored for reload durability.
const (
	KeyDeviceID      = "device_id"
	KeySession       = "session"
	KeySessionSecret = "session_secret"
	KeyUserID        = "user_id"
	KeyNickname      = "nickname"
	KeyCity          = "city"
	KeyGender        = "gender"
	KeyColor         = "color"
	KeyWagon         = "wagon"
	KeyStation       = "station"
	KeyPosition      = "position"
	KeyMood          = "mood"
	KeyScreen        = "screen"
)

// LocalStore is a file-backed key/value store for per-device state: the
// device identity, the serialized session and mirrored profile fields.
type LocalStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// OpenLocalStore loads the store file at path, creating it lazily on first write.
func OpenLocalStore(path string) (*LocalStore, error) {
	s := &LocalStore{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read local store: %w", err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("failed to parse local store: %w", err)
	}
	return s, nil
}

// Get returns the value for a key.
func (s *LocalStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value and persists the store to disk.
func (s *LocalStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.save()
}

// Delete removes a key and persists the store to disk.
func (s *LocalStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return s.save()
}

// DeviceID returns the persisted device identity, generating it on first use.
// The identity is an opaque random string kept for the lifetime of the store.
func (s *LocalStore) DeviceID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.values[KeyDeviceID]; ok && id != "" {
		return id, nil
	}
	id := uuid.New().String()
	s.values[KeyDeviceID] = id
	if err := s.save(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *LocalStore) save() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal local store: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write local store: %w", err)
	}
	return nil
}
