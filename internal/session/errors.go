package session

import (
	"context"
	"errors"

	"github.com/pagesmith/pagesmith/internal/checkpoint"
	"github.com/pagesmith/pagesmith/internal/chunker"
	"github.com/pagesmith/pagesmith/internal/notion"
	"github.com/pagesmith/pagesmith/internal/tool"
)

// Sentinel errors for the session package.
var (
	ErrQueueFull       = errors.New("session: queue full")
	ErrClosed          = errors.New("session: closed")
	ErrCancelled       = errors.New("session: cancelled")
	ErrDuplicateCall   = errors.New("session: duplicate call id")
	ErrEmptyTool       = errors.New("session: call has no tool name")
	ErrSessionNotFound = errors.New("session: not found")
	ErrManagerClosed   = errors.New("session: manager shut down")
)

// Error kinds reported in ErrorInfo.Kind.
const (
	KindCancelled  = "cancelled"
	KindSchema     = "schema"
	KindDenied     = "denied"
	KindValidation = "validation"
	KindTransient  = "transient"
	KindPermanent  = "permanent"
	KindExecution  = "execution"
)

// ErrorInfo describes a failed call in a form that survives encoding.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// classify maps a tool error onto its kind. Cancellation wins over the
// underlying cause so a checkpoint stop inside a chunked write reads as
// cancelled rather than as a partial failure.
func classify(err error) string {
	switch {
	case errors.Is(err, checkpoint.ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, tool.ErrSchema):
		return KindSchema
	case errors.Is(err, tool.ErrDenied):
		return KindDenied
	case errors.Is(err, chunker.ErrValidation), errors.Is(err, tool.ErrInvalidArgument):
		return KindValidation
	case errors.Is(err, notion.ErrTransient):
		return KindTransient
	case errors.Is(err, notion.ErrPermanent):
		return KindPermanent
	default:
		return KindExecution
	}
}
