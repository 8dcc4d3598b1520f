package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagesmith/pagesmith/internal/telemetry"
	"github.com/pagesmith/pagesmith/internal/tool"
)

const (
	defaultMaxIdle       = 30 * time.Minute
	defaultPruneSchedule = "*/5 * * * *"
)

// Config holds the session settings shared by every session of a Manager.
type Config struct {
	Concurrency   int           `yaml:"concurrency"`
	QueueSize     int           `yaml:"queue_size"`
	EventBuffer   int           `yaml:"event_buffer"`
	MaxIdle       time.Duration `yaml:"max_idle"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = defaultMaxIdle
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = defaultPruneSchedule
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Concurrency > 64 {
		errs = append(errs, fmt.Errorf("sessions.concurrency %d exceeds 64", c.Concurrency))
	}
	if c.QueueSize > 1<<16 {
		errs = append(errs, fmt.Errorf("sessions.queue_size %d exceeds %d", c.QueueSize, 1<<16))
	}
	if c.MaxIdle < time.Second {
		errs = append(errs, fmt.Errorf("sessions.max_idle %s is below 1s", c.MaxIdle))
	}
	return errors.Join(errs...)
}

// ServiceName is the AppContext service the Manager is published under.
const ServiceName = "session.manager"

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger handed to every session.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *telemetry.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithJournal mirrors every session into j.
func WithJournal(j Journal) ManagerOption {
	return func(m *Manager) { m.journal = j }
}

// Manager owns sessions by ID. Sessions never share mutable state; the
// manager only indexes them.
type Manager struct {
	cfg     Config
	invoker tool.Invoker
	logger  *slog.Logger
	metrics *telemetry.Metrics
	journal Journal

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewManager returns a manager whose sessions dispatch through inv.
func NewManager(inv tool.Invoker, cfg Config, opts ...ManagerOption) *Manager {
	cfg.Defaults()
	m := &Manager{
		cfg:      cfg,
		invoker:  inv,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Create starts a new session.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	s := New(uuid.NewString(), m.invoker, Options{
		Concurrency: m.cfg.Concurrency,
		QueueSize:   m.cfg.QueueSize,
		EventBuffer: m.cfg.EventBuffer,
		Logger:      m.logger,
		Metrics:     m.metrics,
		Journal:     m.journal,
		now:         m.now,
	})
	m.sessions[s.ID()] = s
	m.metrics.SessionOpened()
	m.logger.Info("session: created", "session", s.ID())
	return s, nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns a snapshot of every session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b Info) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Close drains the session and waits for its done event.
func (m *Manager) Close(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Close(ctx)
}

// Cancel cancels the session without waiting.
func (m *Manager) Cancel(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Cancel()
	return nil
}

// PruneIdle drops sessions idle for longer than maxIdle and returns how
// many were dropped. Live ones are abandoned first. Sessions with calls in
// flight are kept.
func (m *Manager) PruneIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		maxIdle = m.cfg.MaxIdle
	}
	now := m.now()

	m.mu.Lock()
	var victims []*Session
	for id, s := range m.sessions {
		info := s.Info()
		if info.InFlight > 0 || now.Sub(info.LastActive) <= maxIdle {
			continue
		}
		delete(m.sessions, id)
		victims = append(victims, s)
	}
	m.mu.Unlock()

	for _, s := range victims {
		s.abandon()
		m.logger.Info("session: pruned", "session", s.ID())
	}
	return len(victims)
}

// Shutdown cancels every session and waits for them to finish, or for
// ctx. Sessions still running when ctx ends are abandoned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Cancel()
	}
	var err error
	for _, s := range all {
		if werr := s.Wait(ctx); werr != nil {
			s.abandon()
			err = werr
		}
	}
	return err
}
