package localcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"cartsync/internal/model"
)

// File stores one session's snapshot as TOML at <dir>/<session>.toml.
// Unreadable or incompatible files are treated as empty.
type File struct {
	path string

	mu sync.Mutex
}

// NewFile returns a cache for sessionID under dir. dir may start with "~".
func NewFile(dir, sessionID string) (*File, error) {
	name := sanitizeSession(sessionID)
	if name == "" || name != sessionID {
		return nil, fmt.Errorf("invalid session id %q", sessionID)
	}
	resolved, err := expandPath(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	return &File{path: filepath.Join(resolved, name+".toml")}, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) Load(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *File) SaveCart(ctx context.Context, cart model.LocalCart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, _ := f.read()
	snap.Revision = cart.Revision
	snap.RemoteCartID = cart.RemoteCartID
	snap.Items = model.CloneItems(cart.Items)
	return f.write(snap)
}

func (f *File) LoadPointer(ctx context.Context) (string, error) {
	snap, err := f.Load(ctx)
	return snap.FallbackCartID, err
}

func (f *File) SavePointer(ctx context.Context, cartID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, _ := f.read()
	snap.FallbackCartID = cartID
	return f.write(snap)
}

func (f *File) ClearPointer(ctx context.Context) error {
	return f.SavePointer(ctx, "")
}

func (f *File) read() (Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("read cart cache: %w", err)
	}

	var snap Snapshot
	if err := toml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, nil // Graceful degradation
	}
	if !Compatible(snap.Version) {
		return Snapshot{}, nil
	}
	return snap, nil
}

// write replaces the file atomically via rename.
func (f *File) write(snap Snapshot) error {
	snap.Version = FormatVersion
	snap.SavedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := toml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cart cache: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cart cache: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace cart cache: %w", err)
	}
	return nil
}

func sanitizeSession(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, id)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

var _ Cache = (*File)(nil)
