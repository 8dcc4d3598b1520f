package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newWatched(t *testing.T, body string) (string, *Watcher) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagesmith.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing initial file: %v", err)
	}
	return path, NewWatcher(WatcherConfig{ConfigPath: path, PollInterval: 20 * time.Millisecond})
}

func TestWatcher_DetectsChange(t *testing.T) {
	path, w := newWatched(t, "version: \"1\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := os.WriteFile(path, []byte("version: \"1\"\nlogging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("writing modified file: %v", err)
	}

	select {
	case evt := <-w.Events():
		if evt.Type != EventModified {
			t.Errorf("got event type %q, want %q", evt.Type, EventModified)
		}
		if evt.ConfigPath != path {
			t.Errorf("got config path %q, want %q", evt.ConfigPath, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for file change event")
	}
}

func TestWatcher_IgnoresTouch(t *testing.T) {
	path, w := newWatched(t, "version: \"1\"\n")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("touching file: %v", err)
	}

	select {
	case evt := <-w.Events():
		t.Errorf("unexpected event for unchanged content: %+v", evt)
	case <-ctx.Done():
	}
}

func TestWatcher_Stop(t *testing.T) {
	_, w := newWatched(t, "data")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}
}

func TestWatcher_ContextCancellation(t *testing.T) {
	_, w := newWatched(t, "data")

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}

func TestWatcher_StopBeforeStart(t *testing.T) {
	w := NewWatcher(WatcherConfig{ConfigPath: "/any/path", PollInterval: 20 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop before Start deadlocked")
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	w := NewWatcher(WatcherConfig{ConfigPath: "/nonexistent/pagesmith.yaml", PollInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	select {
	case evt := <-w.Events():
		t.Errorf("unexpected event: %+v", evt)
	case <-ctx.Done():
	}
}

func TestWatcherConfig_DefaultInterval(t *testing.T) {
	if got := (WatcherConfig{}).pollIntervalOrDefault(); got != defaultPollInterval {
		t.Errorf("default interval = %v, want %v", got, defaultPollInterval)
	}
	if got := (WatcherConfig{PollInterval: time.Second}).pollIntervalOrDefault(); got != time.Second {
		t.Errorf("interval = %v, want 1s", got)
	}
}
