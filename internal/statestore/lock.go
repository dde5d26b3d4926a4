package statestore

import (
	"fmt"

	"github.com/gofrs/flock"
)

// Lock is an advisory file lock held for the lifetime of a command that
// mutates workflow state.
type Lock struct {
	path string
	lock *flock.Flock
}

// AcquireLock takes the lock at path without blocking. It returns ErrLocked
// when another process already holds it.
func AcquireLock(path string) (*Lock, error) {
	l := &Lock{path: path, lock: flock.New(path)}
	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
	}
	return l, nil
}

// Path returns the lock file.
func (l *Lock) Path() string { return l.path }

// Release unlocks. Calling it more than once is safe.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
