// Package storelock serializes mutating commands against one reference
// store with an advisory file lock.
package storelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"bibkeep/internal/faults"
)

// Lock is a held store lock.
type Lock struct {
	path string
	lock *flock.Flock
}

// Acquire takes the lock at path without waiting. A lock held by another
// process fails with faults.ErrLocked.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrIO, "lock", "create directory", path, err)
	}
	l := &Lock{path: path, lock: flock.New(path)}
	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, "lock", "acquire", path, err)
	}
	if !ok {
		return nil, faults.Wrap(faults.ErrLocked, "lock", "acquire",
			fmt.Sprintf("another bibkeep command holds %s", path), nil)
	}
	return l, nil
}

// Path returns the lock file.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. It is safe to call on a nil lock.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
