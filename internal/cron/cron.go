// Package cron runs periodic maintenance: pruning idle sessions and
// trimming the session journal.
package cron

import (
	"context"
	"errors"
)

var (
	// ErrUnknownJob is returned by RunNow for an unregistered job name.
	ErrUnknownJob = errors.New("cron: unknown job")

	// ErrJobBusy is returned by RunNow while the job is already running.
	ErrJobBusy = errors.New("cron: job already running")
)

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *").
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}
