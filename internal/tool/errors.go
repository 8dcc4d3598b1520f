package tool

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound is returned when a tool is not found in the registry.
	ErrToolNotFound = errors.New("tool not found")

	// ErrEmptyToolName is returned when a tool name is empty.
	ErrEmptyToolName = errors.New("tool name must not be empty")

	// ErrDuplicateTool is returned when registering a tool with a name that
	// already exists in the registry.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrInvalidSchema is returned when a tool's schema cannot be resolved.
	ErrInvalidSchema = errors.New("tool schema is invalid")

	// ErrSchema is matched by every SchemaError.
	ErrSchema = errors.New("tool arguments rejected")

	// ErrExecution is matched by every ExecutionError.
	ErrExecution = errors.New("tool execution failed")

	// ErrPanic wraps a recovered handler panic.
	ErrPanic = errors.New("tool panicked")

	// ErrInvalidArgument is returned by handlers for arguments that pass the
	// schema but are semantically wrong.
	ErrInvalidArgument = errors.New("invalid tool argument")

	// ErrDenied is returned when a tool execution is denied by policy.
	ErrDenied = errors.New("tool execution denied by policy")

	// ErrToolInMultipleLists is returned when a tool appears in conflicting
	// policy lists (e.g., both allow and deny).
	ErrToolInMultipleLists = errors.New("tool appears in conflicting policy lists")
)

// SchemaError rejects an invocation before the handler runs: the tool is
// unknown or its arguments do not match the schema.
type SchemaError struct {
	Tool string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

// Is implements errors.Is.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

func (e *SchemaError) Unwrap() error { return e.Err }

// ExecutionError wraps a handler failure.
type ExecutionError struct {
	Tool  string
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Cause)
}

// Is implements errors.Is.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

func (e *ExecutionError) Unwrap() error { return e.Cause }
