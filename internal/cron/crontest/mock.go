// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagesmith/pagesmith/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockPruner is a test double for cron.SessionPruner.
type MockPruner struct {
	PruneFunc  func(maxIdle time.Duration) int
	PruneCalls atomic.Int32
}

// PruneIdle implements cron.SessionPruner.
func (m *MockPruner) PruneIdle(maxIdle time.Duration) int {
	m.PruneCalls.Add(1)
	if m.PruneFunc != nil {
		return m.PruneFunc(maxIdle)
	}
	return 0
}

// MockTrimmer is a test double for cron.JournalTrimmer.
type MockTrimmer struct {
	mu      sync.Mutex
	cutoffs []time.Time
	Rows    int64
	Err     error
}

// Trim implements cron.JournalTrimmer.
func (m *MockTrimmer) Trim(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, before)
	return m.Rows, m.Err
}

// Cutoffs returns every cutoff Trim was called with.
func (m *MockTrimmer) Cutoffs() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}
