package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/pagesmith/pagesmith/internal/checkpoint"
	"github.com/pagesmith/pagesmith/internal/security"
	"github.com/pagesmith/pagesmith/internal/tool"
	"github.com/pagesmith/pagesmith/internal/tool/tooltest"
)

// wireMessage covers both session events and command replies.
type wireMessage struct {
	Type   string          `json:"type"`
	Seq    uint64          `json:"seq"`
	Op     string          `json:"op"`
	CallID string          `json:"call_id"`
	Error  json.RawMessage `json:"error"`
}

func dialEvents(t *testing.T, env *testEnv, id string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/sessions/" + id + "/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// readUntilClosed collects messages until the server closes the socket
// and checks that the close was a normal one.
func readUntilClosed(t *testing.T, conn *websocket.Conn) []wireMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	var msgs []wireMessage
	for {
		var m wireMessage
		err := wsjson.Read(ctx, conn, &m)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure {
				t.Fatalf("read: %v (close status %d)", err, status)
			}
			return msgs
		}
		msgs = append(msgs, m)
	}
}

func split(msgs []wireMessage) (events, replies []wireMessage) {
	for _, m := range msgs {
		if m.Type == "ack" || m.Type == "rejected" {
			replies = append(replies, m)
			continue
		}
		events = append(events, m)
	}
	return events, replies
}

func TestEvents_CallsOverSocket(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{}, security.RateLimitConfig{})
	id := env.createSession(t)
	conn := dialEvents(t, env, id)

	ctx := t.Context()
	cmds := []streamCommand{
		{Op: "call"},
		{Op: "call"},
		{Op: "bogus"},
		{Op: "close"},
	}
	cmds[0].Call.ID, cmds[0].Call.Tool = "a", "get_page_text"
	cmds[1].Call.ID, cmds[1].Call.Tool = "b", "append_content"
	for _, cmd := range cmds {
		if err := wsjson.Write(ctx, conn, cmd); err != nil {
			t.Fatalf("write %s: %v", cmd.Op, err)
		}
	}

	events, replies := split(readUntilClosed(t, conn))

	wantReplies := []struct{ typ, op string }{
		{"ack", "call"},
		{"ack", "call"},
		{"rejected", "bogus"},
		{"ack", "close"},
	}
	if len(replies) != len(wantReplies) {
		t.Fatalf("replies = %+v, want %d", replies, len(wantReplies))
	}
	for i, w := range wantReplies {
		if replies[i].Type != w.typ || replies[i].Op != w.op {
			t.Errorf("reply[%d] = %s/%s, want %s/%s", i, replies[i].Type, replies[i].Op, w.typ, w.op)
		}
	}
	if replies[0].CallID != "a" {
		t.Errorf("reply[0] call_id = %q, want a", replies[0].CallID)
	}

	wantEvents := []struct{ typ, call string }{
		{"tool_result", "a"},
		{"tool_result", "b"},
		{"done", ""},
	}
	if len(events) != len(wantEvents) {
		t.Fatalf("events = %+v, want %d", events, len(wantEvents))
	}
	for i, w := range wantEvents {
		if events[i].Type != w.typ || events[i].CallID != w.call {
			t.Errorf("event[%d] = %s/%q, want %s/%q", i, events[i].Type, events[i].CallID, w.typ, w.call)
		}
		if events[i].Seq != uint64(i+1) {
			t.Errorf("event[%d] seq = %d, want %d", i, events[i].Seq, i+1)
		}
	}
}

func TestEvents_HTTPSubmitReachesSocket(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{}, security.RateLimitConfig{})
	id := env.createSession(t)
	conn := dialEvents(t, env, id)

	body := map[string]any{"id": "c1", "tool": "get_page_text", "args": map[string]string{"page_id": "p"}}
	if code := env.do(t, http.MethodPost, "/api/sessions/"+id+"/calls", body, nil); code != http.StatusAccepted {
		t.Fatalf("submit status = %d, want 202", code)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	var m wireMessage
	if err := wsjson.Read(ctx, conn, &m); err != nil {
		t.Fatalf("read: %v", err)
	}
	if m.Type != "tool_result" || m.CallID != "c1" {
		t.Errorf("event = %s/%q, want tool_result/c1", m.Type, m.CallID)
	}
}

func TestEvents_CancelOverSocket(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	slow := tooltest.FuncTool("slow", func(ctx context.Context, _ json.RawMessage) (tool.Output, error) {
		close(started)
		sig := checkpoint.FromContext(ctx)
		if sig == nil {
			return tool.Output{}, errors.New("no checkpoint signal")
		}
		<-sig.Done()
		return tool.Output{}, checkpoint.Check(ctx)
	})
	env := newTestEnv(t, Config{}, security.RateLimitConfig{}, slow)
	id := env.createSession(t)
	conn := dialEvents(t, env, id)

	ctx := t.Context()
	call := streamCommand{Op: "call"}
	call.Call.ID, call.Call.Tool = "s1", "slow"
	if err := wsjson.Write(ctx, conn, call); err != nil {
		t.Fatal(err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow tool never started")
	}
	if err := wsjson.Write(ctx, conn, streamCommand{Op: "cancel"}); err != nil {
		t.Fatal(err)
	}

	events, _ := split(readUntilClosed(t, conn))
	if len(events) != 2 {
		t.Fatalf("events = %+v, want 2", events)
	}
	if events[0].Type != "cancelled" || events[0].CallID != "s1" {
		t.Errorf("event[0] = %s/%q, want cancelled/s1", events[0].Type, events[0].CallID)
	}
	if events[1].Type != "cancelled" || events[1].CallID != "" {
		t.Errorf("event[1] = %s/%q, want session cancelled", events[1].Type, events[1].CallID)
	}

	var cancelled bool
	for _, e := range env.audit() {
		if e.Type == security.EventSessionCancel && e.SessionID == id {
			cancelled = true
		}
	}
	if !cancelled {
		t.Error("missing session_cancel audit event")
	}
}

func TestEvents_SingleSubscriber(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{}, security.RateLimitConfig{})
	id := env.createSession(t)
	_ = dialEvents(t, env, id)

	// The first subscriber is registered before its upgrade completes.
	if code := env.do(t, http.MethodGet, "/api/sessions/"+id+"/events", nil, nil); code != http.StatusConflict {
		t.Errorf("second subscriber status = %d, want 409", code)
	}
	if code := env.do(t, http.MethodGet, "/api/sessions/missing/events", nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", code)
	}
}
