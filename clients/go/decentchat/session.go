package decentchat

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

const sessionFile = "session.json"

// Session is the persisted login: the username and the key pair JSON.
type Session struct {
	Username string `json:"username,omitempty"`
	Pair     string `json:"pair,omitempty"`
}

// Empty reports whether either key is missing.
func (s Session) Empty() bool {
	return s.Username == "" || s.Pair == ""
}

// SessionStore persists a session between runs.
type SessionStore interface {
	Load() (Session, error)
	Save(Session) error
	Clear() error
}

// FileSessionStore keeps the session in <dir>/session.json.
type FileSessionStore struct {
	Dir string
}

// NewFileSessionStore creates a store rooted at dir.
func NewFileSessionStore(dir string) *FileSessionStore {
	return &FileSessionStore{Dir: dir}
}

func (f *FileSessionStore) path() string {
	return filepath.Join(f.Dir, sessionFile)
}

// Load reads the session; a missing file is an empty session.
func (f *FileSessionStore) Load() (Session, error) {
	var s Session
	data, err := os.ReadFile(f.path())
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Save writes the session with owner-only permissions.
func (f *FileSessionStore) Save(s Session) error {
	if err := os.MkdirAll(f.Dir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path(), data, 0600)
}

// Clear removes both keys.
func (f *FileSessionStore) Clear() error {
	err := os.Remove(f.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemorySessionStore keeps the session in process.
type MemorySessionStore struct {
	mu sync.Mutex
	s  Session
}

func (m *MemorySessionStore) Load() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *MemorySessionStore) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func (m *MemorySessionStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = Session{}
	return nil
}
