package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "hookpull.lock")
	l, err := Acquire(context.Background(), lockPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	b, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.TrimSpace(string(b)) == "" {
		t.Fatalf("expected PID in lock file, got empty")
	}
	if l.Path() != lockPath {
		t.Errorf("Path() = %q, want %q", l.Path(), lockPath)
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "hookpull.lock")
	first, err := Acquire(context.Background(), lockPath)
	if err != nil {
		t.Fatalf("Acquire first: %v", err)
	}

	acquired := make(chan *FileLock, 1)
	go func() {
		l, err := Acquire(context.Background(), lockPath)
		if err != nil {
			t.Errorf("Acquire second: %v", err)
			close(acquired)
			return
		}
		acquired <- l
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned while the lock was held")
	case <-time.After(3 * pollInterval):
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case l := <-acquired:
		if l != nil {
			_ = l.Release()
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second Acquire did not proceed after Release")
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "hookpull.lock")
	held, err := Acquire(context.Background(), lockPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = held.Release() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*pollInterval)
	defer cancel()

	_, err = Acquire(ctx, lockPath)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire error = %v, want DeadlineExceeded", err)
	}
}

func TestReleaseNil(t *testing.T) {
	var l *FileLock
	if err := l.Release(); err != nil {
		t.Errorf("Release on nil lock: %v", err)
	}
}

func TestAcquireEmptyPath(t *testing.T) {
	if _, err := Acquire(context.Background(), ""); err == nil {
		t.Error("expected error for empty path")
	}
}
