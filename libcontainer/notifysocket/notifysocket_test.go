package notifysocket

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNotifyUnblocksWait(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	ln, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}
	defer ln.Close()

	done := make(chan error, 1)
	go func() { done <- ln.Wait() }()

	if err := Notify(path); err != nil {
		t.Fatalf("Notify() failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() did not unblock after Notify()")
	}
}

func TestListenLongPath(t *testing.T) {
	// A bundle path deep enough that joining FileName onto it would
	// overflow sun_path's 108 bytes if Listen didn't chdir first.
	dir := filepath.Join(t.TempDir(), "a-long-nested-directory-name-used-to-pad-the-path-length-out-well-past-the-sun-path-limit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, FileName)

	ln, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen() failed on long path: %v", err)
	}
	ln.Close()
}
