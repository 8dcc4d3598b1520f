// Package reload applies configuration changes to a running pagesmith
// process. Changes arrive through SIGHUP or a polling file watcher.
package reload

import (
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the configuration file to watch.
	ConfigPath string

	// PollInterval defaults to 5 seconds.
	PollInterval time.Duration
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// EventType describes the type of file change event.
type EventType string

const (
	// EventModified means the file content changed.
	EventModified EventType = "modified"
)

// Event represents a file change notification.
type Event struct {
	Type       EventType
	ConfigPath string
}

// Watcher polls a configuration file and reports content changes. A save
// that leaves the bytes unchanged (a touch, an editor writing the same
// buffer) produces no event, and neither does a missing file.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a file watcher. Call Start to begin polling.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling. Only the first call has an effect. The baseline
// digest is taken before Start returns, so a write that follows Start is
// always reported.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		baseline, _ := w.digest()
		go w.poll(ctx, baseline)
	})
}

// Events returns the change notifications. Changes that arrive while an
// event is still pending are folded into it.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop ends polling and waits for the poller to exit. It is safe to call
// more than once and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context, last [sha256.Size]byte) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			current, ok := w.digest()
			if !ok || current == last {
				continue
			}
			last = current
			select {
			case w.events <- Event{Type: EventModified, ConfigPath: w.cfg.ConfigPath}:
			default:
			}
		}
	}
}

func (w *Watcher) digest() ([sha256.Size]byte, bool) {
	raw, err := os.ReadFile(w.cfg.ConfigPath)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(raw), true
}
