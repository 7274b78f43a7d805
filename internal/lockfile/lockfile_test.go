package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAcquireLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	defer lock.Release()

	content, err := os.ReadFile(filepath.Join(dir, DirLockName))
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	if want := fmt.Sprintf("pid=%d\n", os.Getpid()); string(content) != want {
		t.Errorf("lock file content mismatch: expected %q, got %q", want, string(content))
	}
}

func TestAcquireLock_Conflict(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to acquire first lock: %v", err)
	}
	defer first.Release()

	second, err := AcquireLock(dir)
	if err == nil {
		second.Release()
		t.Fatal("second lock acquisition should have failed")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockError, got %T", err)
	}
	if !strings.Contains(err.Error(), dir) {
		t.Errorf("error should name the lock path: %s", err)
	}
	if !strings.Contains(lockErr.Holder, "running") {
		t.Errorf("expected holder description, got %q", lockErr.Holder)
	}
}

func TestAcquireLock_ReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, DirLockName)); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed after release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second release should be a no-op: %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to reacquire lock: %v", err)
	}
	again.Release()
}

func TestLockPath_Serializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversation_a.json.lock")

	first, err := LockPath(path)
	if err != nil {
		t.Fatalf("failed to lock path: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired bool
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		second, err := LockPath(path)
		if err != nil {
			t.Errorf("failed to lock path: %v", err)
			return
		}
		mu.Lock()
		acquired = true
		mu.Unlock()
		second.Release()
	}()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	early := acquired
	mu.Unlock()
	if early {
		t.Fatal("second locker acquired the lock while the first still held it")
	}

	if err := first.Release(); err != nil {
		t.Fatalf("failed to release: %v", err)
	}
	wg.Wait()
	if !acquired {
		t.Error("second locker never acquired the lock")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("per-path lock file should remain after release: %v", err)
	}
}

func TestParsePID(t *testing.T) {
	if got := parsePID("pid=1234\n"); got != 1234 {
		t.Errorf("expected 1234, got %d", got)
	}
	if got := parsePID("garbage"); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
