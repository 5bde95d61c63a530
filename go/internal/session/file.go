package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"
)

const (
	sessionFile = "session.yaml"
	profileFile = "profile.yaml"
)

// FileStore keeps the session and profile as yaml files in a directory,
// so a terminal client can recover its identity across restarts.
type FileStore struct {
	mu    sync.Mutex
	dir   string
	clock clockwork.Clock
}

// NewFileStore creates the directory if needed and returns a store rooted at it.
func NewFileStore(dir string, clock clockwork.Clock) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{dir: dir, clock: clock}, nil
}

func (f *FileStore) Save(_ context.Context, s Session) error {
	if err := s.validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(sessionFile, s)
}

func (f *FileStore) Load(_ context.Context) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var s Session
	found, err := f.read(sessionFile, &s)
	if err != nil || !found {
		return nil, err
	}
	if s.Expired(f.clock.Now()) {
		return nil, f.remove(sessionFile)
	}
	return &s, nil
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remove(sessionFile)
}

func (f *FileStore) SaveProfile(_ context.Context, p Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(profileFile, p)
}

func (f *FileStore) LoadProfile(_ context.Context) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var p Profile
	found, err := f.read(profileFile, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func (f *FileStore) write(name string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	tmp := filepath.Join(f.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, filepath.Join(f.dir, name))
}

func (f *FileStore) read(name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

func (f *FileStore) remove(name string) error {
	err := os.Remove(filepath.Join(f.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
