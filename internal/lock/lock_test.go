package lock

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMutexMap_SerializesSameKey(t *testing.T) {
	m := NewMutexMap()

	// A plain increment stays correct only if Lock/Unlock actually
	// serialize access to the key.
	var hits int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("inbox/20250101_git.json")
			hits++
			m.Unlock("inbox/20250101_git.json")
		}()
	}
	wg.Wait()

	if hits != 100 {
		t.Errorf("expected 100 serialized increments, got %d", hits)
	}
}

func TestMutexMap_IndependentKeys(t *testing.T) {
	m := NewMutexMap()
	m.Lock("circuit_breakers.json")
	defer m.Unlock("circuit_breakers.json")

	done := make(chan struct{})
	go func() {
		m.Lock("CustomTemplates.json")
		m.Unlock("CustomTemplates.json")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different key blocked behind an unrelated holder")
	}
}

func TestMutexMap_Relockable(t *testing.T) {
	m := NewMutexMap()
	for i := 0; i < 3; i++ {
		m.Lock("sched")
		m.Unlock("sched")
	}
}

func lockAt(t *testing.T) (string, *FileLock) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daemon.lock")
	return path, NewFileLock(path)
}

func TestFileLock_AcquireWritesPID(t *testing.T) {
	path, fl := lockAt(t)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer fl.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(content), "\n") {
		t.Errorf("lock file should contain a PID line, got %q", content)
	}
}

func TestFileLock_SecondHolderRejected(t *testing.T) {
	path, first := lockAt(t)
	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	defer first.Unlock()

	second := NewFileLock(path)
	if err := second.TryLock(); err == nil {
		second.Unlock()
		t.Fatal("expected second TryLock to fail while the first holds the lock")
	}
}

func TestFileLock_ReleaseThenReacquire(t *testing.T) {
	path, first := lockAt(t)
	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed on release, stat err = %v", err)
	}

	second := NewFileLock(path)
	if err := second.TryLock(); err != nil {
		t.Fatalf("re-lock after release failed: %v", err)
	}
	second.Unlock()
}

func TestFileLock_UnlockIdempotent(t *testing.T) {
	_, fl := lockAt(t)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("second Unlock should be a no-op, got: %v", err)
	}
}
