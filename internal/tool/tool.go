// Package tool defines the tool contract and the registry every invocation
// goes through. The registry validates arguments against each tool's JSON
// Schema before dispatch, so handlers only ever see well-formed input.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// SideEffect declares what a tool does to the workspace.
type SideEffect string

// SideEffect values.
const (
	SideEffectRead    SideEffect = "read"
	SideEffectWrite   SideEffect = "write"
	SideEffectDerived SideEffect = "derived"
)

// Tool is a named, schema-described operation.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Schema describes the tool's arguments.
	Schema() *jsonschema.Schema

	// SideEffect reports whether the tool reads, writes or derives content.
	SideEffect() SideEffect

	// Execute runs the tool. args has already been validated against Schema.
	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// Output is the result of a tool execution.
type Output struct {
	// Content is the textual result shown to the caller.
	Content string `json:"content"`

	// Data is an optional structured result.
	Data any `json:"data,omitempty"`
}

// Invoker runs tools by name. The Registry implements it; derived tools
// depend on it to call their dependencies.
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (Output, error)
}

// MustSchema infers the schema of T. It panics on types jsonschema cannot
// represent and is meant for package-level variables.
func MustSchema[T any]() *jsonschema.Schema {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("tool: schema for %T: %v", *new(T), err))
	}
	return s
}

// DecodeArgs unmarshals validated arguments into T. Failures match
// ErrInvalidArgument.
func DecodeArgs[T any](args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return v, nil
}
