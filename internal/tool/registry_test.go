package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type echoArgs struct {
	Text  string `json:"text" jsonschema:"text to echo back"`
	Times int    `json:"times,omitempty" jsonschema:"number of repetitions"`
}

var echoSchema = MustSchema[echoArgs]()

type registryTestTool struct {
	name   string
	effect SideEffect
	schema *jsonschema.Schema
	run    func(ctx context.Context, args json.RawMessage) (Output, error)

	mu    sync.Mutex
	calls int
}

func (t *registryTestTool) Name() string        { return t.name }
func (t *registryTestTool) Description() string { return "registry test tool " + t.name }
func (t *registryTestTool) SideEffect() SideEffect {
	if t.effect == "" {
		return SideEffectRead
	}
	return t.effect
}

func (t *registryTestTool) Schema() *jsonschema.Schema {
	if t.schema == nil {
		return echoSchema
	}
	return t.schema
}

func (t *registryTestTool) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.run != nil {
		return t.run(ctx, args)
	}
	a, err := DecodeArgs[echoArgs](args)
	if err != nil {
		return Output{}, err
	}
	return Output{Content: strings.Repeat(a.Text, max(a.Times, 1))}, nil
}

func (t *registryTestTool) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func TestRegistryRegister_EmptyName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{"", "   "} {
		if err := r.Register(&registryTestTool{name: name}); !errors.Is(err, ErrEmptyToolName) {
			t.Fatalf("name %q: expected ErrEmptyToolName, got %v", name, err)
		}
	}
}

func TestRegistryRegister_Duplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(&registryTestTool{name: "echo"}); err != nil {
		t.Fatalf("unexpected first register error: %v", err)
	}
	if err := r.Register(&registryTestTool{name: "echo"}); !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestRegistryRegister_InvalidSchema(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	bad := &jsonschema.Schema{Ref: "#/$defs/missing"}
	if err := r.Register(&registryTestTool{name: "broken", schema: bad}); !errors.Is(err, ErrInvalidSchema) {
		t.Fatalf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestRegistryInvoke(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	echo := &registryTestTool{name: "echo"}
	if err := r.Register(echo); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		tool    string
		args    string
		want    string
		wantErr error
	}{
		{"ok", "echo", `{"text":"hi","times":2}`, "hihi", nil},
		{"unknown tool", "nope", `{}`, "", ErrToolNotFound},
		{"missing required", "echo", `{}`, "", ErrSchema},
		{"wrong type", "echo", `{"text":5}`, "", ErrSchema},
		{"unknown field", "echo", `{"text":"a","extra":true}`, "", ErrSchema},
		{"not json", "echo", `{`, "", ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Invoke(context.Background(), tt.tool, json.RawMessage(tt.args))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if out.Content != tt.want {
				t.Errorf("content = %q, want %q", out.Content, tt.want)
			}
		})
	}
	if got := echo.Calls(); got != 1 {
		t.Errorf("handler ran %d times, want 1 (rejected calls must not dispatch)", got)
	}

	_, err := r.Invoke(context.Background(), "nope", nil)
	if !errors.Is(err, ErrSchema) {
		t.Errorf("unknown tool should be a schema error, got %v", err)
	}
}

func TestRegistryInvoke_ExecutionErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("backend down")
	r := NewRegistry()
	_ = r.Register(&registryTestTool{name: "fails", run: func(context.Context, json.RawMessage) (Output, error) {
		return Output{}, cause
	}})
	_ = r.Register(&registryTestTool{name: "panics", run: func(context.Context, json.RawMessage) (Output, error) {
		panic("kaboom")
	}})

	_, err := r.Invoke(context.Background(), "fails", json.RawMessage(`{"text":"x"}`))
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Tool != "fails" {
		t.Fatalf("expected *ExecutionError, got %v", err)
	}
	if !errors.Is(err, ErrExecution) || !errors.Is(err, cause) {
		t.Errorf("execution error should match ErrExecution and its cause: %v", err)
	}

	_, err = r.Invoke(context.Background(), "panics", json.RawMessage(`{"text":"x"}`))
	if !errors.Is(err, ErrExecution) || !errors.Is(err, ErrPanic) {
		t.Errorf("panic should surface as an execution error, got %v", err)
	}
}

func TestRegistryInvoke_Policy(t *testing.T) {
	t.Parallel()

	r := NewRegistry(WithPolicy(Policy{ReadOnly: true, Allow: []string{"append"}}))
	_ = r.Register(&registryTestTool{name: "read"})
	_ = r.Register(&registryTestTool{name: "write", effect: SideEffectWrite})
	_ = r.Register(&registryTestTool{name: "append", effect: SideEffectWrite})

	args := json.RawMessage(`{"text":"x"}`)
	if _, err := r.Invoke(context.Background(), "read", args); err != nil {
		t.Errorf("read tool: %v", err)
	}
	if _, err := r.Invoke(context.Background(), "write", args); !errors.Is(err, ErrDenied) {
		t.Errorf("write tool in read-only mode: expected ErrDenied, got %v", err)
	}
	if _, err := r.Invoke(context.Background(), "append", args); err != nil {
		t.Errorf("explicitly allowed tool: %v", err)
	}
}

func TestRegistrySetPolicy(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_ = r.Register(&registryTestTool{name: "write", effect: SideEffectWrite})
	args := json.RawMessage(`{"text":"x"}`)

	if _, err := r.Invoke(context.Background(), "write", args); err != nil {
		t.Fatalf("default policy: %v", err)
	}
	r.SetPolicy(Policy{ReadOnly: true})
	if _, err := r.Invoke(context.Background(), "write", args); !errors.Is(err, ErrDenied) {
		t.Errorf("after switching to read-only: expected ErrDenied, got %v", err)
	}
	r.SetPolicy(Policy{})
	if _, err := r.Invoke(context.Background(), "write", args); err != nil {
		t.Errorf("after restoring default policy: %v", err)
	}
}

func TestRegistryInvoke_RecordsSpan(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(rec))
	r := NewRegistry(WithTracerProvider(tp))
	_ = r.Register(&registryTestTool{name: "echo"})

	if _, err := r.Invoke(context.Background(), "echo", json.RawMessage(`{"text":"x"}`)); err != nil {
		t.Fatal(err)
	}
	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "tool.invoke" {
		t.Fatalf("spans = %v", spans)
	}
}

func TestRegistryCatalog(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_ = r.Register(&registryTestTool{name: "zeta"})
	_ = r.Register(&registryTestTool{name: "alpha", effect: SideEffectWrite})

	cat := r.Catalog()
	if len(cat) != 2 || cat[0].Name != "alpha" || cat[1].Name != "zeta" {
		t.Fatalf("catalog = %+v", cat)
	}
	if cat[0].SideEffect != SideEffectWrite {
		t.Errorf("side effect = %q", cat[0].SideEffect)
	}
	params := cat[0].Params
	if len(params) != 2 {
		t.Fatalf("params = %+v", params)
	}
	if params[0].Name != "text" || params[0].Type != "string" || !params[0].Required || params[0].Description != "text to echo back" {
		t.Errorf("text param = %+v", params[0])
	}
	if params[1].Name != "times" || params[1].Type != "integer" || params[1].Required {
		t.Errorf("times param = %+v", params[1])
	}
	if !json.Valid(cat[0].Schema) {
		t.Errorf("schema is not valid JSON: %s", cat[0].Schema)
	}
}

type describedTool struct {
	registryTestTool
	desc string
}

func (d *describedTool) Description() string { return d.desc }

func TestRegistrySearch(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_ = r.Register(&describedTool{registryTestTool{name: "get_page_text"}, "Read the full text of a page"})
	_ = r.Register(&describedTool{registryTestTool{name: "list_users"}, "List workspace members"})

	got, err := r.Search("page", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) == 0 || got[0].Name != "get_page_text" {
		t.Fatalf("results = %+v", got)
	}

	got, err = r.Search("members", 5)
	if err != nil || len(got) != 1 || got[0].Name != "list_users" {
		t.Fatalf("results = %+v, err = %v", got, err)
	}

	_ = r.Register(&describedTool{registryTestTool{name: "search_notion"}, "Search pages by title"})
	got, err = r.Search("search", 5)
	if err != nil || len(got) != 1 || got[0].Name != "search_notion" {
		t.Errorf("index not rebuilt after register: %+v, err = %v", got, err)
	}

	all, _ := r.Search("", 2)
	if len(all) != 2 || all[0].Name != "get_page_text" {
		t.Errorf("empty query = %+v", all)
	}
}

func TestDecodeArgs(t *testing.T) {
	t.Parallel()

	if _, err := DecodeArgs[echoArgs](json.RawMessage(`{"text":1}`)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	a, err := DecodeArgs[echoArgs](nil)
	if err != nil || a.Text != "" {
		t.Errorf("empty args = %+v, %v", a, err)
	}
}

func TestReportProgress(t *testing.T) {
	t.Parallel()

	ReportProgress(context.Background(), Progress{Message: "ignored"})

	var got []string
	ctx := WithProgress(context.Background(), func(p Progress) { got = append(got, p.Message) })
	ReportProgress(ctx, Progress{Message: "one"})
	ReportProgress(ctx, Progress{Message: "two"})
	if strings.Join(got, ",") != "one,two" {
		t.Errorf("progress = %v", got)
	}
}
