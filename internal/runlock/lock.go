package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another banana3d process owns the lock.
var ErrHeld = errors.New("another banana3d run is already in progress")

// Lock serialises runs that share a state directory. The generation service
// tracks one job at a time, so two concurrent runs would read each other's
// views.
type Lock struct {
	path string
	lock *flock.Flock
}

// New prepares a lock at path without acquiring it.
func New(path string) *Lock {
	return &Lock{path: path, lock: flock.New(path)}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking. It returns ErrHeld when the lock
// is owned elsewhere.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

// Locked reports whether this process holds the lock.
func (l *Lock) Locked() bool {
	return l.lock.Locked()
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	if !l.lock.Locked() {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
