package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/pagesmith/pagesmith/internal/telemetry"
)

// ServiceName is the AppContext service the shared Registry is published under.
const ServiceName = "tool.registry"

type entry struct {
	tool     Tool
	resolved *jsonschema.Resolved
	raw      json.RawMessage
}

// Registry holds registered tools and validates and dispatches their
// invocations. It is instance-based (not global) for better testability.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	policy Policy
	index  *searchIndex

	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics records invocation counts and latencies on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithTracerProvider enables a span per invocation.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Registry) { r.tracer = tp.Tracer("github.com/pagesmith/pagesmith/internal/tool") }
}

// WithPolicy restricts which tools may run.
func WithPolicy(p Policy) Option {
	return func(r *Registry) { r.policy = p }
}

// SetPolicy replaces the access policy. Invocations already past the
// policy check are not affected.
func (r *Registry) SetPolicy(p Policy) {
	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{tools: make(map[string]*entry)}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.tracer == nil {
		r.tracer = noop.NewTracerProvider().Tracer("")
	}
	return r
}

// Register adds a tool to the registry. Its schema is resolved once here.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return ErrEmptyToolName
	}
	schema := t.Schema()
	if schema == nil {
		return fmt.Errorf("%w: %s: no schema", ErrInvalidSchema, name)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSchema, name, err)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSchema, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = &entry{tool: t, resolved: resolved, raw: raw}
	r.index = nil
	return nil
}

// Get returns the tool with the given name, or ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return e.tool, nil
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Invoke validates args against the named tool's schema and runs it.
//
// Unknown tools and invalid arguments fail with *SchemaError before the
// handler runs. Handler failures, panics included, come back as
// *ExecutionError wrapping the cause.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (Output, error) {
	ctx, span := r.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	start := time.Now()
	out, err := r.invoke(ctx, name, args)
	outcome := outcomeOf(err)
	r.metrics.ObserveTool(name, outcome, time.Since(start))
	span.SetAttributes(attribute.String("tool.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		r.logger.Debug("tool: invocation failed", "tool", name, "outcome", outcome, "error", err)
		return out, err
	}
	r.logger.Debug("tool: invocation succeeded",
		"tool", name,
		"duration", time.Since(start),
		"output", truncateForLog(out.Content),
	)
	return out, nil
}

func (r *Registry) invoke(ctx context.Context, name string, args json.RawMessage) (Output, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	policy := r.policy
	r.mu.RUnlock()
	if !ok {
		return Output{}, &SchemaError{Tool: name, Err: ErrToolNotFound}
	}
	if policy.Resolve(e.tool) == AccessDeny {
		return Output{}, fmt.Errorf("%w: %s", ErrDenied, name)
	}

	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		return Output{}, &SchemaError{Tool: name, Err: fmt.Errorf("arguments are not valid JSON: %w", err)}
	}
	if err := e.resolved.Validate(instance); err != nil {
		return Output{}, &SchemaError{Tool: name, Err: err}
	}

	out, err := r.execute(ctx, e.tool, args)
	if err != nil {
		return out, &ExecutionError{Tool: name, Cause: err}
	}
	return out, nil
}

func (r *Registry) execute(ctx context.Context, t Tool, args json.RawMessage) (out Output, err error) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("tool: handler panicked",
				"tool", t.Name(),
				"panic", v,
				"stack", string(debug.Stack()),
			)
			out, err = Output{}, fmt.Errorf("%w: %v", ErrPanic, v)
		}
	}()
	return t.Execute(ctx, args)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSchema):
		return "rejected"
	case errors.Is(err, ErrDenied):
		return "denied"
	default:
		return "error"
	}
}

// maxLogDetailLen bounds tool output echoed into debug logs.
const maxLogDetailLen = 512

// truncateForLog walks back to a rune boundary so multi-byte characters
// are never split.
func truncateForLog(s string) string {
	if len(s) <= maxLogDetailLen {
		return s
	}
	i := maxLogDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
