package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(tempDir, LockFileName)
	content, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	expected := fmt.Sprintf("pid=%d\n", os.Getpid())
	if string(content) != expected {
		t.Errorf("Lock file content = %q, want %q", string(content), expected)
	}
}

func TestLockConflict(t *testing.T) {
	tempDir := t.TempDir()

	first, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer first.Release()

	_, err = AcquireLock(tempDir)
	if err == nil {
		t.Fatal("Second acquire should have failed while lock is held")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("err = %T, want *LockError", err)
	}
	if lockErr.LockPath != filepath.Join(tempDir, LockFileName) {
		t.Errorf("LockPath = %s", lockErr.LockPath)
	}
}

func TestLockReleaseAllowsReacquire(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	// Release is idempotent.
	if err := lock.Release(); err != nil {
		t.Fatalf("Second release failed: %v", err)
	}

	second, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Reacquire after release failed: %v", err)
	}
	second.Release()
}

func TestExtractPIDFromLockInfo(t *testing.T) {
	cases := []struct {
		content string
		want    int
	}{
		{"pid=1234\n", 1234},
		{"pid=7", 7},
		{"no pid here", 0},
		{"pid=", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := extractPIDFromLockInfo(tc.content); got != tc.want {
			t.Errorf("extractPIDFromLockInfo(%q) = %d, want %d", tc.content, got, tc.want)
		}
	}
}
