package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FSBackend stores each entry as <dir>/<stage>/<hash>.json.
type FSBackend struct {
	dir string
}

// NewFSBackend creates dir if needed and returns a backend rooted there.
func NewFSBackend(dir string) (*FSBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &FSBackend{dir: dir}, nil
}

func (b *FSBackend) path(stage, hash string) string {
	return filepath.Join(b.dir, stage, hash+".json")
}

// Load implements Backend.
func (b *FSBackend) Load(_ context.Context, stage, hash string) (*Entry, error) {
	data, err := os.ReadFile(b.path(stage, hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s/%s: %w", stage, hash, err)
	}
	return &e, nil
}

// Save implements Backend. The entry is written to a temporary file first
// and renamed into place so readers never observe a partial entry.
func (b *FSBackend) Save(_ context.Context, e *Entry) error {
	target := b.path(e.Stage, e.InputHash)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".entry-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// Close implements Backend.
func (b *FSBackend) Close() error { return nil }
