package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagesmith/pagesmith/internal/telemetry"
)

const (
	defaultPruneSchedule = "*/5 * * * *"
	defaultTrimSchedule  = "0 * * * *"
)

// SessionPruner is the part of session.Manager the prune job needs.
type SessionPruner interface {
	PruneIdle(maxIdle time.Duration) int
}

// SessionPruneJob drops sessions idle for longer than MaxIdle.
type SessionPruneJob struct {
	Sessions     SessionPruner
	MaxIdle      time.Duration // zero = the manager's own max_idle
	ScheduleExpr string        // empty = default "*/5 * * * *"
	Metrics      *telemetry.Metrics
	Logger       *slog.Logger
}

// Compile-time interface check.
var _ Job = (*SessionPruneJob)(nil)

// Name implements Job.
func (j *SessionPruneJob) Name() string { return "session_prune" }

// Schedule implements Job.
func (j *SessionPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return defaultPruneSchedule
}

// Run implements Job.
func (j *SessionPruneJob) Run(_ context.Context) error {
	pruned := j.Sessions.PruneIdle(j.MaxIdle)
	j.Metrics.SessionsPruned(pruned)
	if pruned > 0 && j.Logger != nil {
		j.Logger.Info("cron: pruned idle sessions", "count", pruned)
	}
	return nil
}

// JournalTrimmer is the part of the session journal the trim job needs.
type JournalTrimmer interface {
	Trim(ctx context.Context, before time.Time) (int64, error)
}

// JournalTrimJob deletes journal rows older than Retention.
type JournalTrimJob struct {
	Journal      JournalTrimmer
	Retention    time.Duration
	ScheduleExpr string // empty = default "0 * * * *"
	Logger       *slog.Logger

	now func() time.Time
}

// Compile-time interface check.
var _ Job = (*JournalTrimJob)(nil)

// Name implements Job.
func (j *JournalTrimJob) Name() string { return "journal_trim" }

// Schedule implements Job.
func (j *JournalTrimJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return defaultTrimSchedule
}

// Run implements Job.
func (j *JournalTrimJob) Run(ctx context.Context) error {
	if j.Retention <= 0 {
		return nil
	}
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	n, err := j.Journal.Trim(ctx, now().Add(-j.Retention))
	if err != nil {
		return fmt.Errorf("cron: journal trim: %w", err)
	}
	if n > 0 && j.Logger != nil {
		j.Logger.Info("cron: trimmed journal", "rows", n, "retention", j.Retention)
	}
	return nil
}
