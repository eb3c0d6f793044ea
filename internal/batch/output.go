package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrOutputLocked is returned when another process holds the output lock.
var ErrOutputLocked = errors.New("output is locked by another process")

// OutputLock guards one output file against concurrent writers.
type OutputLock struct {
	path string
	lock *flock.Flock
}

// LockOutput acquires "<path>.lock" without blocking.
func LockOutput(path string) (*OutputLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	lockPath := path + ".lock"
	l := flock.New(lockPath)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, lockPath)
	}
	return &OutputLock{path: path, lock: l}, nil
}

// Write stores blob at the locked path via a temp file and rename.
func (o *OutputLock) Write(blob []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(o.path), "."+filepath.Base(o.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod output: %w", err)
	}
	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmpName, o.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

// Release drops the lock and removes the lock file.
func (o *OutputLock) Release() error {
	if o == nil || o.lock == nil {
		return nil
	}
	err := o.lock.Unlock()
	_ = os.Remove(o.lock.Path())
	return err
}
