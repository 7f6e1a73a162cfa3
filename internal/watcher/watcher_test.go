package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("username: Player\n"), 0600); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	w, err := NewWithDebounceDelay(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWithDebounceDelay() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, path
}

func awaitEvent(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Events():
	case err := <-w.Errors():
		t.Fatalf("watcher error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestWriteBurstYieldsOneEvent(t *testing.T) {
	w, path := newTestWatcher(t)

	// Several writes in quick succession, as an editor or an atomic
	// replace would produce.
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("username: Player\n"), 0600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	awaitEvent(t, w)

	// The burst collapsed into exactly one event.
	select {
	case <-w.Events():
		t.Error("burst produced a second event")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestAtomicReplaceYieldsEvent(t *testing.T) {
	w, path := newTestWatcher(t)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte("username: Other\n"), 0600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	awaitEvent(t, w)
}

func TestUnrelatedFileIgnored(t *testing.T) {
	w, path := newTestWatcher(t)

	other := filepath.Join(filepath.Dir(path), "notes.txt")
	if err := os.WriteFile(other, []byte("x"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-w.Events():
		t.Error("event for unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	w, _ := newTestWatcher(t)

	if err := w.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// Channels are closed after shutdown.
	if _, ok := <-w.Events(); ok {
		t.Error("events channel still open after Close")
	}
}
