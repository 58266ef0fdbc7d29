package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// State is what the client remembers between runs besides configuration.
type State struct {
	// LastRoomID is the room that was active when the client quit.
	LastRoomID string `yaml:"last_room,omitempty"`
	// LastRoomName is the display name at the time, for the login screen.
	LastRoomName string    `yaml:"last_room_name,omitempty"`
	UpdatedAt    time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no room is remembered.
func (s *State) IsEmpty() bool {
	return s.LastRoomID == ""
}

// SetLastRoom records the active room.
func (s *State) SetLastRoom(id, name string) {
	s.LastRoomID = id
	s.LastRoomName = name
	s.UpdatedAt = time.Now()
}

// StateStore manages loading and saving State.
type StateStore struct {
	path string
	mu   sync.RWMutex
}

// NewStateStore creates a new state store.
// If path is empty, uses the default path (<config dir>/state.yaml).
func NewStateStore(path string) *StateStore {
	if path == "" {
		path = filepath.Join(Dir(), "state.yaml")
	}
	return &StateStore{path: path}
}

// Path returns the state file path.
func (s *StateStore) Path() string {
	return s.path
}

// Load reads the state from disk.
// Returns an empty state if the file doesn't exist.
func (s *StateStore) Load() (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &State{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if err := yaml.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	return st, nil
}

// Save writes the state to disk.
func (s *StateStore) Save(st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Clear removes the state file.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}
