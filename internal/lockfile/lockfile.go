// Package lockfile guards against two pulsewire instances reporting for the
// same target from one host.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock file is held by another process")

// Lock is an acquired exclusive file lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes an exclusive lock on path without blocking. The parent
// directory is created if needed.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, errors.New("lock file path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock directory: %w", err)
		}
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	return &Lock{fl: fl}, nil
}

// Path returns the locked file's path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release unlocks the file. It is safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
