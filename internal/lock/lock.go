// Package lock provides the two locking layers queue mutation relies on:
// per-key mutexes within the process and an advisory file lock across
// processes.
package lock

import (
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
)

// MutexMap hands out one mutex per key, created on first use. Queue code
// keys it by envelope path, so concurrent IPC handlers never interleave
// writes to the same file.
type MutexMap struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMutexMap() *MutexMap {
	return &MutexMap{locks: make(map[string]*sync.Mutex)}
}

func (m *MutexMap) Lock(key string)   { m.forKey(key).Lock() }
func (m *MutexMap) Unlock(key string) { m.forKey(key).Unlock() }

func (m *MutexMap) forKey(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// FileLock guards single-daemon startup. The lock survives for the life of
// the process and carries the holder's PID for operators peeking at the file.
type FileLock struct {
	flock *flock.Flock
	path  string
}

func NewFileLock(path string) *FileLock {
	return &FileLock{
		flock: flock.New(path),
		path:  path,
	}
}

// TryLock acquires the lock without blocking. A held lock means another
// daemon owns this root.
func (fl *FileLock) TryLock() error {
	acquired, err := fl.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", fl.path, err)
	}
	if !acquired {
		return fmt.Errorf("lock %s held (another daemon may be running)", fl.path)
	}

	if err := os.WriteFile(fl.path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600); err != nil {
		fl.flock.Unlock()
		return fmt.Errorf("write PID to lock file: %w", err)
	}
	return nil
}

func (fl *FileLock) Unlock() error {
	if !fl.flock.Locked() {
		return nil
	}
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	os.Remove(fl.path)
	return nil
}
