package preflight

import (
	"errors"

	"vidsub/internal/statestore"
)

// CheckStateLock reports whether another vidsub process holds the state lock.
// The lock is released again immediately.
func CheckStateLock(path string) Result {
	const name = "State lock"
	lock, err := statestore.AcquireLock(path)
	if err != nil {
		if errors.Is(err, statestore.ErrLocked) {
			return Result{Name: name, Detail: "held by another vidsub process"}
		}
		return Result{Name: name, Detail: err.Error()}
	}
	_ = lock.Release()
	return Result{Name: name, Passed: true, Detail: path}
}
