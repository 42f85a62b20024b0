// Tests for the config file watcher: construction, change delivery, close
// semantics, and the polling fallback.
package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/505260991/qq-farm-bot/internal/atomicfile"
)

// ///////////////////////////////////////////////
// Constructor Tests
// ///////////////////////////////////////////////

func TestNewWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{}`), 0o644)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if w.Events() == nil {
		t.Fatal("Events() returned nil channel")
	}
	// Polling state depends on the platform's fsnotify support; just verify
	// the accessor is callable either way.
	_ = w.Polling()
}

// ///////////////////////////////////////////////
// File Change Event Tests
// ///////////////////////////////////////////////

func TestFileChangeTriggersEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}

	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"theme":"dark"}`), 0o644)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(100 * time.Millisecond)

	os.WriteFile(path, []byte(`{"theme":"light"}`), 0o644)

	// Generous timeout because polling mode has a 2s interval.
	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for file change event")
	}
}

func TestAtomicSavesTriggerEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}

	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{}`), 0o644)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(100 * time.Millisecond)

	// Store.persist replaces the file by rename. The watcher must keep
	// reporting across replacements, not die with the original inode.
	if err := atomicfile.Write(path, []byte(`{"theme":"dark"}`), 0o644); err != nil {
		t.Fatalf("first atomic write: %v", err)
	}
	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("first atomic save not observed")
	}

	// Drain any trailing event before the second save.
	time.Sleep(100 * time.Millisecond)
	select {
	case <-w.Events():
	default:
	}

	if err := atomicfile.Write(path, []byte(`{"theme":"light"}`), 0o644); err != nil {
		t.Fatalf("second atomic write: %v", err)
	}
	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("second atomic save not observed; watch died with the replaced file")
	}
}

func TestMultipleWritesCoalesce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}

	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"farmInterval":1}`), 0o644)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(100 * time.Millisecond)

	// Rapid successive writes coalesce because the events channel is
	// buffered to 1.
	for i := 0; i < 10; i++ {
		os.WriteFile(path, []byte(`{"farmInterval":`+string(rune('0'+i))+`}`), 0o644)
	}

	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for coalesced event")
	}
}

// ///////////////////////////////////////////////
// Close Tests
// ///////////////////////////////////////////////

func TestWatcherClose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}

	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{}`), 0o644)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// After close, edits no longer produce events.
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(path, []byte(`{"theme":"light"}`), 0o644)

	select {
	case <-w.Events():
		t.Error("received event after Close; watcher should be stopped")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{}`), 0o644)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
