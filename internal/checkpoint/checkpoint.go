// Package checkpoint implements cooperative cancellation. Long-running
// operations call Check at safe points (page and batch boundaries) and stop
// there once the session's Signal has fired. In-flight remote requests are
// never interrupted by a Signal.
package checkpoint

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is returned by Check once the signal carried by the context
// has fired.
var ErrCancelled = errors.New("checkpoint: cancelled")

// Signal is a one-shot cancellation flag shared by every call of a session.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns an unfired signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Fire marks the signal as fired. Calling it more than once is harmless.
func (s *Signal) Fire() {
	s.once.Do(func() { close(s.ch) })
}

// Fired reports whether Fire has been called.
func (s *Signal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the signal fires.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

type signalKey struct{}

// WithSignal returns a context carrying s.
func WithSignal(ctx context.Context, s *Signal) context.Context {
	return context.WithValue(ctx, signalKey{}, s)
}

// FromContext returns the signal carried by ctx, or nil.
func FromContext(ctx context.Context) *Signal {
	s, _ := ctx.Value(signalKey{}).(*Signal)
	return s
}

// Check returns ErrCancelled if the context's signal has fired, and the
// context error if ctx itself is done. It returns nil otherwise.
func Check(ctx context.Context) error {
	if s := FromContext(ctx); s != nil && s.Fired() {
		return ErrCancelled
	}
	return ctx.Err()
}
