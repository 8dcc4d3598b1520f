package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pagesmith/pagesmith/internal/checkpoint"
	"github.com/pagesmith/pagesmith/internal/notion"
	"github.com/pagesmith/pagesmith/internal/tool"
)

// invokerFunc adapts a function to tool.Invoker.
type invokerFunc func(ctx context.Context, name string, args json.RawMessage) (tool.Output, error)

func (f invokerFunc) Invoke(ctx context.Context, name string, args json.RawMessage) (tool.Output, error) {
	return f(ctx, name, args)
}

// collect drains the stream until it closes.
func collect(t *testing.T, s *Session) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not close, got %d events", len(out))
		}
	}
}

type summary struct {
	Type   EventType
	CallID string
}

func summarize(events []Event) []summary {
	out := make([]summary, len(events))
	for i, ev := range events {
		out[i] = summary{ev.Type, ev.CallID}
	}
	return out
}

func assertEvents(t *testing.T, got []Event, want []summary) {
	t.Helper()
	g := summarize(got)
	if len(g) != len(want) {
		t.Fatalf("events = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("event %d = %v, want %v (all: %v)", i, g[i], want[i], g)
		}
		if got[i].Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d, want %d", i, got[i].Seq, i+1)
		}
	}
}

func submit(t *testing.T, s *Session, id, name string) {
	t.Helper()
	if _, err := s.Submit(ToolCall{ID: id, Tool: name}); err != nil {
		t.Fatalf("Submit(%s): %v", id, err)
	}
}

func TestSession_EmitsInIssuanceOrder(t *testing.T) {
	t.Parallel()

	releaseA := make(chan struct{})
	bDone := make(chan struct{})
	inv := invokerFunc(func(_ context.Context, name string, _ json.RawMessage) (tool.Output, error) {
		switch name {
		case "a":
			<-releaseA
		case "b":
			defer close(bDone)
		}
		return tool.Output{Content: name}, nil
	})
	s := New("s1", inv, Options{Concurrency: 3})
	submit(t, s, "A", "a")
	submit(t, s, "B", "b")
	submit(t, s, "C", "c")

	<-bDone
	close(releaseA)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	events := collect(t, s)
	assertEvents(t, events, []summary{
		{EventToolResult, "A"},
		{EventToolResult, "B"},
		{EventToolResult, "C"},
		{EventDone, ""},
	})
	if events[1].Content != "b" {
		t.Errorf("B content = %q", events[1].Content)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
}

func TestSession_BuffersPartialsOfLaterCalls(t *testing.T) {
	t.Parallel()

	releaseA := make(chan struct{})
	bDone := make(chan struct{})
	inv := invokerFunc(func(ctx context.Context, name string, _ json.RawMessage) (tool.Output, error) {
		tool.ReportProgress(ctx, tool.Progress{Message: name + "1"})
		switch name {
		case "a":
			<-releaseA
		case "b":
			defer close(bDone)
		}
		return tool.Output{}, nil
	})
	s := New("s1", inv, Options{Concurrency: 2})
	submit(t, s, "A", "a")
	submit(t, s, "B", "b")
	<-bDone
	close(releaseA)
	_ = s.Close(context.Background())

	events := collect(t, s)
	assertEvents(t, events, []summary{
		{EventPartial, "A"},
		{EventToolResult, "A"},
		{EventPartial, "B"},
		{EventToolResult, "B"},
		{EventDone, ""},
	})
	if events[2].Content != "b1" {
		t.Errorf("partial content = %q, want b1", events[2].Content)
	}
}

func TestSession_CancelInFlightAndQueued(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	inv := invokerFunc(func(ctx context.Context, name string, _ json.RawMessage) (tool.Output, error) {
		if name != "slow" {
			t.Errorf("queued call %s ran after cancel", name)
			return tool.Output{}, nil
		}
		close(started)
		// A traversal would stop at its next page boundary.
		<-checkpoint.FromContext(ctx).Done()
		return tool.Output{}, checkpoint.Check(ctx)
	})
	s := New("s1", inv, Options{Concurrency: 1})
	submit(t, s, "A", "slow")
	submit(t, s, "B", "fast")
	<-started

	s.Cancel()

	// The queued call is finalized at cancel time.
	log := s.Log()
	if log[1].Result == nil || log[1].Result.Outcome != OutcomeCancelled {
		t.Fatalf("queued call result = %+v, want cancelled", log[1].Result)
	}
	if _, err := s.Submit(ToolCall{Tool: "fast"}); !errors.Is(err, ErrCancelled) {
		t.Errorf("Submit after cancel err = %v, want ErrCancelled", err)
	}

	events := collect(t, s)
	assertEvents(t, events, []summary{
		{EventCancelled, "A"},
		{EventCancelled, "B"},
		{EventCancelled, ""},
	})
	if events[0].Error == nil || events[0].Error.Kind != KindCancelled {
		t.Errorf("in-flight error = %+v", events[0].Error)
	}
	if s.State() != StateCancelled {
		t.Errorf("state = %s, want cancelled", s.State())
	}
}

func TestSession_SuccessAfterCancelIsKept(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	inv := invokerFunc(func(context.Context, string, json.RawMessage) (tool.Output, error) {
		close(started)
		<-release
		return tool.Output{Content: "done anyway"}, nil
	})
	s := New("s1", inv, Options{Concurrency: 1})
	submit(t, s, "A", "write")
	<-started
	s.Cancel()
	close(release)

	assertEvents(t, collect(t, s), []summary{
		{EventToolResult, "A"},
		{EventCancelled, ""},
	})
}

func TestSession_FailuresAreIsolated(t *testing.T) {
	t.Parallel()

	reg := tool.NewRegistry()
	inv := invokerFunc(func(ctx context.Context, name string, args json.RawMessage) (tool.Output, error) {
		switch name {
		case "missing_page":
			return tool.Output{}, &tool.ExecutionError{Tool: name, Cause: &notion.APIError{Status: 404, Code: "object_not_found"}}
		case "busy":
			return tool.Output{}, &notion.APIError{Status: 429}
		case "boom":
			panic("kaboom")
		case "unknown":
			return reg.Invoke(ctx, name, args)
		}
		return tool.Output{Content: "ok"}, nil
	})
	s := New("s1", inv, Options{Concurrency: 2})
	for _, name := range []string{"missing_page", "ok", "busy", "boom", "unknown"} {
		submit(t, s, name, name)
	}
	_ = s.Close(context.Background())
	events := collect(t, s)
	assertEvents(t, events, []summary{
		{EventError, "missing_page"},
		{EventToolResult, "ok"},
		{EventError, "busy"},
		{EventError, "boom"},
		{EventError, "unknown"},
		{EventDone, ""},
	})

	wantKinds := map[string]string{
		"missing_page": KindPermanent,
		"busy":         KindTransient,
		"boom":         KindExecution,
		"unknown":      KindSchema,
	}
	for _, ev := range events {
		want, ok := wantKinds[ev.CallID]
		if !ok {
			continue
		}
		if ev.Error == nil || ev.Error.Kind != want {
			t.Errorf("%s error = %+v, want kind %s", ev.CallID, ev.Error, want)
		}
	}
}

func TestSession_SubmitErrors(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	inv := invokerFunc(func(context.Context, string, json.RawMessage) (tool.Output, error) {
		once.Do(func() { close(started) })
		<-release
		return tool.Output{}, nil
	})
	s := New("s1", inv, Options{Concurrency: 1, QueueSize: 1})

	if _, err := s.Submit(ToolCall{ID: "x"}); !errors.Is(err, ErrEmptyTool) {
		t.Errorf("empty tool err = %v", err)
	}
	submit(t, s, "A", "t")
	<-started
	submit(t, s, "B", "t")
	if _, err := s.Submit(ToolCall{ID: "C", Tool: "t"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("queue full err = %v, want ErrQueueFull", err)
	}
	if _, err := s.Submit(ToolCall{ID: "A", Tool: "t"}); !errors.Is(err, ErrDuplicateCall) {
		t.Errorf("duplicate err = %v, want ErrDuplicateCall", err)
	}
	if got := s.State(); got != StateExecuting {
		t.Errorf("state = %s, want executing", got)
	}

	close(release)
	go func() { _ = s.Close(context.Background()) }()
	events := collect(t, s)
	if len(events) != 3 {
		t.Fatalf("events = %v", summarize(events))
	}
	if _, err := s.Submit(ToolCall{Tool: "t"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after close err = %v, want ErrClosed", err)
	}
}

func TestSession_GeneratesCallIDs(t *testing.T) {
	t.Parallel()

	s := New("", invokerFunc(func(context.Context, string, json.RawMessage) (tool.Output, error) {
		return tool.Output{}, nil
	}), Options{})
	if s.ID() == "" {
		t.Fatal("session ID not generated")
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
	id, err := s.Submit(ToolCall{Tool: "t"})
	if err != nil || id == "" {
		t.Fatalf("Submit = %q, %v", id, err)
	}
	_ = s.Close(context.Background())
	events := collect(t, s)
	if events[0].CallID != id || events[0].Session != s.ID() {
		t.Errorf("event = %+v", events[0])
	}
	log := s.Log()
	if len(log) != 1 || log[0].Result == nil || log[0].Result.Outcome != OutcomeOK {
		t.Errorf("log = %+v", log)
	}
}

type memJournal struct {
	mu     sync.Mutex
	calls  []string
	events []EventType
}

func (j *memJournal) RecordCall(_ context.Context, _ string, c ToolCall) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, c.ID)
	return nil
}

func (j *memJournal) RecordEvent(_ context.Context, ev Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev.Type)
	return nil
}

func TestSession_MirrorsIntoJournal(t *testing.T) {
	t.Parallel()

	j := &memJournal{}
	s := New("s1", invokerFunc(func(context.Context, string, json.RawMessage) (tool.Output, error) {
		return tool.Output{}, nil
	}), Options{Journal: j})
	submit(t, s, "A", "t")
	_ = s.Close(context.Background())
	collect(t, s)

	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.calls) != 1 || j.calls[0] != "A" {
		t.Errorf("journal calls = %v", j.calls)
	}
	if len(j.events) != 2 || j.events[0] != EventToolResult || j.events[1] != EventDone {
		t.Errorf("journal events = %v", j.events)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"checkpoint", checkpoint.ErrCancelled, KindCancelled},
		{"context", context.Canceled, KindCancelled},
		{"schema", &tool.SchemaError{Tool: "x", Err: tool.ErrToolNotFound}, KindSchema},
		{"denied", tool.ErrDenied, KindDenied},
		{"argument", tool.ErrInvalidArgument, KindValidation},
		{"transient", &notion.APIError{Status: 503}, KindTransient},
		{"exhausted", &notion.ExhaustedError{Op: "append", Attempts: 3}, KindPermanent},
		{"other", errors.New("x"), KindExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify = %s, want %s", got, tt.want)
			}
		})
	}
}
