package chunker

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("chunker: invalid content")

// ValidationError rejects input before anything is written.
type ValidationError struct {
	// Unit is the index of the offending unit, or -1 when the error is not
	// tied to one.
	Unit   int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Unit < 0 {
		return "chunker: " + e.Reason
	}
	return fmt.Sprintf("chunker: unit %d: %s", e.Unit, e.Reason)
}

// Is implements errors.Is.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Checkpoint identifies the first piece of work not yet committed. It is
// safe to hand back through Options.Resume any number of times.
type Checkpoint struct {
	ParentID string       `json:"parent_id"`
	NextUnit int          `json:"next_unit"`
	After    string       `json:"after,omitempty"`
	Table    *TableCursor `json:"table,omitempty"`
}

// TableCursor points into the rows of a table created by an earlier batch.
type TableCursor struct {
	BlockID string `json:"block_id"`
	NextRow int    `json:"next_row"`
}

// String returns the JSON form of the checkpoint.
func (c Checkpoint) String() string {
	data, _ := json.Marshal(c)
	return string(data)
}

// PartialError reports a write that stopped after committing some batches.
type PartialError struct {
	Checkpoint Checkpoint
	Report     Report
	Total      int
	Cause      error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("chunker: wrote %d of %d units before stopping (resume_from %s): %v",
		e.Report.Units, e.Total, e.Checkpoint, e.Cause)
}

func (e *PartialError) Unwrap() error { return e.Cause }
