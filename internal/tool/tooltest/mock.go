// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pagesmith/pagesmith/internal/tool"
)

// MockTool is a configurable mock implementation of tool.Tool.
type MockTool struct {
	NameFunc        func() string
	DescriptionFunc func() string
	SchemaFunc      func() *jsonschema.Schema
	SideEffectFunc  func() tool.SideEffect
	ExecuteFunc     func(ctx context.Context, args json.RawMessage) (tool.Output, error)

	mu           sync.Mutex
	ExecuteCalls int
}

// Name implements tool.Tool.
func (m *MockTool) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock_tool"
}

// Description implements tool.Tool.
func (m *MockTool) Description() string {
	if m.DescriptionFunc != nil {
		return m.DescriptionFunc()
	}
	return "a mock tool"
}

// Schema implements tool.Tool. The default accepts any object.
func (m *MockTool) Schema() *jsonschema.Schema {
	if m.SchemaFunc != nil {
		return m.SchemaFunc()
	}
	return &jsonschema.Schema{Type: "object"}
}

// SideEffect implements tool.Tool.
func (m *MockTool) SideEffect() tool.SideEffect {
	if m.SideEffectFunc != nil {
		return m.SideEffectFunc()
	}
	return tool.SideEffectRead
}

// Execute implements tool.Tool.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
	m.mu.Lock()
	m.ExecuteCalls++
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args)
	}
	return tool.Output{Content: "ok"}, nil
}

// Calls returns ExecuteCalls under the mock's lock.
func (m *MockTool) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExecuteCalls
}

// SimpleTool creates a minimal tool for testing with the given name and
// side effect.
func SimpleTool(name string, effect tool.SideEffect) *MockTool {
	return &MockTool{
		NameFunc:        func() string { return name },
		DescriptionFunc: func() string { return "simple test tool: " + name },
		SideEffectFunc:  func() tool.SideEffect { return effect },
		ExecuteFunc: func(_ context.Context, _ json.RawMessage) (tool.Output, error) {
			return tool.Output{Content: "executed: " + name}, nil
		},
	}
}

// FuncTool creates a tool whose Execute is fn.
func FuncTool(name string, fn func(ctx context.Context, args json.RawMessage) (tool.Output, error)) *MockTool {
	return &MockTool{
		NameFunc:    func() string { return name },
		ExecuteFunc: fn,
	}
}

// Interface guards.
var _ tool.Tool = (*MockTool)(nil)
