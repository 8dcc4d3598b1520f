package session

import (
	"encoding/json"
	"time"
)

// EventType identifies an event on a session stream.
type EventType string

// Per-call events carry a CallID. Session-terminal events (done, and
// cancelled with an empty CallID) are always the last event of a stream.
const (
	EventPartial    EventType = "partial"
	EventToolResult EventType = "tool_result"
	EventError      EventType = "error"
	EventCancelled  EventType = "cancelled"
	EventDone       EventType = "done"
)

// Terminal reports whether e ends a call (or the session).
func (e EventType) Terminal() bool {
	return e != EventPartial
}

// ToolCall is a request to run one tool within a session.
type ToolCall struct {
	// ID is unique within the session. Submit assigns one when empty.
	ID   string          `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`

	// Turn is the caller's conversation turn, echoed on events.
	Turn int `json:"turn,omitempty"`
}

// Outcome is how a call ended.
type Outcome string

// Call outcomes.
const (
	OutcomeOK        Outcome = "ok"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// ToolResult is the final result of a call.
type ToolResult struct {
	CallID   string        `json:"call_id"`
	Tool     string        `json:"tool"`
	Outcome  Outcome       `json:"outcome"`
	Content  string        `json:"content,omitempty"`
	Data     any           `json:"data,omitempty"`
	Error    *ErrorInfo    `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Event is one element of a session's ordered output stream.
type Event struct {
	// Seq increases by one for every emitted event of a session.
	Seq     uint64     `json:"seq"`
	Session string     `json:"session"`
	Type    EventType  `json:"type"`
	CallID  string     `json:"call_id,omitempty"`
	Tool    string     `json:"tool,omitempty"`
	Turn    int        `json:"turn,omitempty"`
	Content string     `json:"content,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Time    time.Time  `json:"time"`
}

// Entry pairs a call with its result in the session log. Result is nil
// while the call is queued or running.
type Entry struct {
	Call   ToolCall    `json:"call"`
	Result *ToolResult `json:"result,omitempty"`
}

// State is the position of a session in its lifecycle.
type State string

// Session states. Cancelled and Closed are terminal.
const (
	StateIdle         State = "idle"
	StateAwaitingCall State = "awaiting_call"
	StateExecuting    State = "executing"
	StateEmitting     State = "emitting"
	StateCancelled    State = "cancelled"
	StateClosed       State = "closed"
)

// Terminal reports whether no further calls can be accepted in s.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateClosed
}
