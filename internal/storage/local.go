package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Local stores objects as files under a root directory.
type Local struct {
	root string
}

// NewLocal returns a store rooted at dir. The directory need not exist yet.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", dir, err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// Root returns the absolute root directory.
func (l *Local) Root() string { return l.root }

type localFile struct {
	*os.File
	size int64
}

func (f *localFile) Size() int64 { return f.size }

// Open opens key for random-access reads.
func (l *Local) Open(_ context.Context, key string) (File, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open %s: is a container: %w", key, ErrNotExist)
	}
	return &localFile{File: f, size: info.Size()}, nil
}

// Exists reports whether key is a regular file.
func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// ContainerExists reports whether container is a directory.
func (l *Local) ContainerExists(_ context.Context, container string) (bool, error) {
	info, err := os.Stat(l.path(container))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", container, err)
	}
	return info.IsDir(), nil
}

// EnsureContainer creates the container directory and any parents.
func (l *Local) EnsureContainer(_ context.Context, container string) error {
	if err := os.MkdirAll(l.path(container), 0o755); err != nil {
		return fmt.Errorf("create container %s: %w", container, err)
	}
	return nil
}

// List returns the file keys directly under container.
func (l *Local) List(_ context.Context, container string) ([]string, error) {
	entries, err := os.ReadDir(l.path(container))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", container, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		keys = append(keys, Join(container, e.Name()))
	}
	sort.Strings(keys)
	return keys, nil
}

// Write writes to a temp file in the destination directory and renames it
// over key.
func (l *Local) Write(_ context.Context, key string, data []byte) error {
	dst := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Close is a no-op for local stores.
func (l *Local) Close() error { return nil }
