package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetry = 50 * time.Millisecond

// FileBackend stores seeds as a JSON object. Writers hold an exclusive lock
// on a sibling ".lock" file and replace the seeds file atomically.
type FileBackend struct {
	path string
	lock *flock.Flock
}

// NewFileBackend returns a backend over path. The file need not exist.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the seeds file location.
func (f *FileBackend) Path() string { return f.path }

// Load implements Backend.
func (f *FileBackend) Load(ctx context.Context) (Seeds, error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return nil, err
	}
	if _, err := f.lock.TryRLockContext(ctx, lockRetry); err != nil {
		return nil, fmt.Errorf("locking %s: %w", f.path, err)
	}
	defer f.lock.Unlock()
	return f.read()
}

// Update implements Backend.
func (f *FileBackend) Update(ctx context.Context, fn func(Seeds) (Seeds, error)) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	if _, err := f.lock.TryLockContext(ctx, lockRetry); err != nil {
		return fmt.Errorf("locking %s: %w", f.path, err)
	}
	defer f.lock.Unlock()

	stored, err := f.read()
	if err != nil {
		return err
	}
	next, err := fn(stored)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (f *FileBackend) read() (Seeds, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultSeeds(), nil
	}
	if err != nil {
		return nil, err
	}
	var s Seeds
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	return s, nil
}

// Close implements Backend.
func (f *FileBackend) Close() error { return f.lock.Close() }
