package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SessionKey is the fixed name the session handle is stored under.
const SessionKey = "chat_sessionId"

// SessionStore persists the conversation handle between runs.
type SessionStore interface {
	// Load returns the stored handle, or "" when there is none.
	Load() (string, error)
	Save(sessionID string) error
}

// FileSessionStore keeps the handle in a file named SessionKey.
type FileSessionStore struct {
	path string
}

// NewFileSessionStore stores the handle under dir. An empty dir means
// support-chat inside the user config directory.
func NewFileSessionStore(dir string) (*FileSessionStore, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locate config dir: %w", err)
		}
		dir = filepath.Join(base, "support-chat")
	}
	return &FileSessionStore{path: filepath.Join(dir, SessionKey)}, nil
}

// Path returns the file the handle is kept in.
func (f *FileSessionStore) Path() string {
	return f.path
}

func (f *FileSessionStore) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileSessionStore) Save(sessionID string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(sessionID), 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// MemorySessionStore keeps the handle in memory.
type MemorySessionStore struct {
	mu sync.Mutex
	id string
}

func (m *MemorySessionStore) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemorySessionStore) Save(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = sessionID
	return nil
}
