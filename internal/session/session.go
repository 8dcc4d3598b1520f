// Package session implements the dispatch loop: a session accepts tool
// calls, runs them on a bounded worker pool and emits their events in the
// order the calls were issued.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagesmith/pagesmith/internal/checkpoint"
	"github.com/pagesmith/pagesmith/internal/telemetry"
	"github.com/pagesmith/pagesmith/internal/tool"
)

const (
	defaultConcurrency = 2
	defaultQueueSize   = 256
	defaultEventBuffer = 64

	journalTimeout = 5 * time.Second
)

// Journal persists the calls and emitted events of every session.
// Implementations must be safe for concurrent use.
type Journal interface {
	RecordCall(ctx context.Context, sessionID string, call ToolCall) error
	RecordEvent(ctx context.Context, ev Event) error
}

// Options configure a Session.
type Options struct {
	Concurrency int
	QueueSize   int
	EventBuffer int

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Journal Journal

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

func (o *Options) defaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaultEventBuffer
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.now == nil {
		o.now = time.Now
	}
}

// call is a ToolCall plus its dispatch state. Every field besides the
// embedded call is guarded by Session.mu.
type call struct {
	ToolCall
	started bool
	result  *ToolResult

	// pending holds events not yet emitted, the terminal one last.
	pending []Event
}

// Session is one conversation's dispatch loop. Submit is its only inbound
// surface and Events its only outbound one.
//
// All shared state is guarded by a single mutex. The emitter goroutine
// waits on cond for the head call to produce events, so results of later
// calls stay buffered until every earlier call has emitted its terminal
// event.
type Session struct {
	id      string
	invoker tool.Invoker
	logger  *slog.Logger
	metrics *telemetry.Metrics
	journal Journal
	now     func() time.Time

	// ctx is the base context of every call. stop abandons the session.
	ctx    context.Context
	stop   context.CancelFunc
	signal *checkpoint.Signal

	mu          sync.Mutex
	cond        *sync.Cond
	calls       []*call
	byID        map[string]*call
	next        int
	queued      int
	inflight    int
	seq         uint64
	closing     bool
	cancelled   bool
	finished    bool
	inboxClosed bool
	created     time.Time
	lastActive  time.Time

	inbox  chan *call
	events chan Event
	pool   *workerPool
	done   chan struct{}
}

// New starts a session that dispatches calls through inv.
func New(id string, inv tool.Invoker, opts Options) *Session {
	opts.defaults()
	if id == "" {
		id = uuid.NewString()
	}
	ctx, stop := context.WithCancel(context.Background())
	now := opts.now()
	s := &Session{
		id:         id,
		invoker:    inv,
		logger:     opts.Logger.With("session", id),
		metrics:    opts.Metrics,
		journal:    opts.Journal,
		now:        opts.now,
		ctx:        ctx,
		stop:       stop,
		signal:     checkpoint.NewSignal(),
		byID:       make(map[string]*call),
		created:    now,
		lastActive: now,
		inbox:      make(chan *call, opts.QueueSize),
		events:     make(chan Event, opts.EventBuffer),
		pool:       newWorkerPool(opts.Concurrency),
		done:       make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.pool.start(s.inbox, s.run)
	go s.emitLoop()
	s.logger.Debug("session: started", "concurrency", s.pool.size, "queue_size", opts.QueueSize)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Events returns the ordered output stream. It is closed after the
// session-terminal event.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session-terminal event has been emitted.
func (s *Session) Done() <-chan struct{} { return s.done }

// Submit queues a call and returns its ID, generating one when the call
// has none. It never blocks: a full queue fails with ErrQueueFull.
func (s *Session) Submit(tc ToolCall) (string, error) {
	if tc.Tool == "" {
		return "", ErrEmptyTool
	}
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}

	s.mu.Lock()
	switch {
	case s.cancelled:
		s.mu.Unlock()
		return "", ErrCancelled
	case s.closing:
		s.mu.Unlock()
		return "", ErrClosed
	}
	if _, dup := s.byID[tc.ID]; dup {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateCall, tc.ID)
	}
	c := &call{ToolCall: tc}
	select {
	case s.inbox <- c:
	default:
		s.mu.Unlock()
		s.logger.Warn("session: queue full, call rejected", "call", tc.ID, "tool", tc.Tool)
		return "", ErrQueueFull
	}
	s.calls = append(s.calls, c)
	s.byID[tc.ID] = c
	s.queued++
	s.lastActive = s.now()
	s.mu.Unlock()

	s.logger.Debug("session: call queued", "call", tc.ID, "tool", tc.Tool)
	if s.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		if err := s.journal.RecordCall(ctx, s.id, tc); err != nil {
			s.logger.Warn("session: journal call failed", "call", tc.ID, "error", err)
		}
		cancel()
	}
	return tc.ID, nil
}

// Cancel stops the session. Queued calls are finalized as cancelled right
// away, in-flight calls stop at their next checkpoint, and the stream ends
// with a session cancelled event. Calling Cancel again is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.finished {
		return
	}
	s.cancelled = true
	s.signal.Fire()

	n := 0
	for _, c := range s.calls[s.next:] {
		if c.started || c.result != nil {
			continue
		}
		s.queued--
		s.finishLocked(c, &ToolResult{
			CallID:  c.ID,
			Tool:    c.Tool,
			Outcome: OutcomeCancelled,
			Error:   &ErrorInfo{Kind: KindCancelled, Message: "session cancelled before the call started"},
		})
		n++
	}
	s.closeInboxLocked()
	s.cond.Broadcast()
	s.logger.Info("session: cancelled", "queued_cancelled", n, "in_flight", s.inflight)
}

// Close stops accepting calls, lets queued and in-flight calls finish and
// waits for the done event, or for ctx.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closing && !s.cancelled {
		s.closing = true
		s.closeInboxLocked()
		s.cond.Broadcast()
		s.logger.Debug("session: closing", "pending", len(s.calls)-s.next)
	}
	s.mu.Unlock()
	return s.Wait(ctx)
}

// Wait blocks until the session has emitted its terminal event.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abandon cancels the session and the base context of its calls. Events
// no reader picks up are dropped from then on.
func (s *Session) abandon() {
	s.Cancel()
	s.stop()
}

// State reports the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.cancelled:
		return StateCancelled
	case s.closing || s.finished:
		return StateClosed
	case s.inflight > 0 || s.queued > 0:
		return StateExecuting
	case s.next < len(s.calls):
		return StateEmitting
	case len(s.calls) == 0:
		return StateIdle
	default:
		return StateAwaitingCall
	}
}

// Log returns every call of the session in issuance order with its result
// once finalized.
func (s *Session) Log() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.calls))
	for i, c := range s.calls {
		out[i].Call = c.ToolCall
		if c.result != nil {
			r := *c.result
			out[i].Result = &r
		}
	}
	return out
}

// Info is a snapshot of a session.
type Info struct {
	ID         string    `json:"id"`
	State      State     `json:"state"`
	Calls      int       `json:"calls"`
	InFlight   int       `json:"in_flight"`
	Queued     int       `json:"queued"`
	Created    time.Time `json:"created"`
	LastActive time.Time `json:"last_active"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.id,
		State:      s.stateLocked(),
		Calls:      len(s.calls),
		InFlight:   s.inflight,
		Queued:     s.queued,
		Created:    s.created,
		LastActive: s.lastActive,
	}
}

func (s *Session) closeInboxLocked() {
	if !s.inboxClosed {
		s.inboxClosed = true
		close(s.inbox)
	}
}

// run executes one call on a worker.
func (s *Session) run(c *call) {
	s.mu.Lock()
	if c.result != nil {
		// Cancelled while queued.
		s.mu.Unlock()
		return
	}
	c.started = true
	s.queued--
	s.inflight++
	s.mu.Unlock()

	ctx := checkpoint.WithSignal(s.ctx, s.signal)
	ctx = tool.WithProgress(ctx, func(p tool.Progress) { s.partial(c, p) })

	start := s.now()
	out, err := s.invoke(ctx, c)
	res := &ToolResult{
		CallID:   c.ID,
		Tool:     c.Tool,
		Outcome:  OutcomeOK,
		Content:  out.Content,
		Data:     out.Data,
		Duration: s.now().Sub(start),
	}
	if err != nil {
		kind := classify(err)
		res.Outcome = OutcomeError
		if kind == KindCancelled {
			res.Outcome = OutcomeCancelled
		}
		res.Error = &ErrorInfo{Kind: kind, Message: err.Error()}
		s.logger.Info("session: call failed", "call", c.ID, "tool", c.Tool, "kind", kind, "error", err)
	}

	s.mu.Lock()
	s.inflight--
	s.finishLocked(c, res)
	s.mu.Unlock()
}

// invoke shields the session from panicking invokers.
func (s *Session) invoke(ctx context.Context, c *call) (out tool.Output, err error) {
	defer func() {
		if v := recover(); v != nil {
			s.logger.Error("session: invoker panicked", "call", c.ID, "tool", c.Tool, "panic", v)
			out, err = tool.Output{}, &tool.ExecutionError{Tool: c.Tool, Cause: fmt.Errorf("%w: %v", tool.ErrPanic, v)}
		}
	}()
	return s.invoker.Invoke(ctx, c.Tool, c.Args)
}

func (s *Session) partial(c *call, p tool.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.result != nil {
		return
	}
	c.pending = append(c.pending, Event{
		Type:    EventPartial,
		CallID:  c.ID,
		Tool:    c.Tool,
		Turn:    c.Turn,
		Content: p.Message,
		Data:    p.Data,
	})
	s.lastActive = s.now()
	s.cond.Broadcast()
}

// finishLocked records the result and buffers the call's terminal event.
func (s *Session) finishLocked(c *call, res *ToolResult) {
	c.result = res
	ev := Event{
		CallID:  c.ID,
		Tool:    c.Tool,
		Turn:    c.Turn,
		Content: res.Content,
		Data:    res.Data,
		Error:   res.Error,
	}
	switch res.Outcome {
	case OutcomeOK:
		ev.Type = EventToolResult
	case OutcomeCancelled:
		ev.Type = EventCancelled
	default:
		ev.Type = EventError
	}
	c.pending = append(c.pending, ev)
	s.lastActive = s.now()
	s.cond.Broadcast()
}

// emitLoop is the only sender on events.
func (s *Session) emitLoop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		ev, ok := s.nextLocked()
		for !ok {
			s.cond.Wait()
			ev, ok = s.nextLocked()
		}
		last := ev.CallID == "" && ev.Type.Terminal()
		if last {
			s.finished = true
		}
		s.mu.Unlock()

		s.deliver(ev)
		if last {
			s.pool.wait()
			close(s.events)
			s.stop()
			s.metrics.SessionClosed()
			s.logger.Info("session: finished", "type", ev.Type, "events", ev.Seq)
			return
		}
	}
}

// nextLocked pops the next emittable event: the oldest buffered event of
// the head call, or the session-terminal event once every call has
// emitted and no more can arrive.
func (s *Session) nextLocked() (Event, bool) {
	if s.next < len(s.calls) {
		c := s.calls[s.next]
		if len(c.pending) == 0 {
			return Event{}, false
		}
		ev := c.pending[0]
		c.pending = c.pending[1:]
		if ev.Type.Terminal() {
			c.pending = nil
			s.next++
		}
		return s.stampLocked(ev), true
	}
	if !s.closing && !s.cancelled {
		return Event{}, false
	}
	typ := EventDone
	if s.cancelled {
		typ = EventCancelled
	}
	return s.stampLocked(Event{Type: typ}), true
}

func (s *Session) stampLocked(ev Event) Event {
	s.seq++
	ev.Seq = s.seq
	ev.Session = s.id
	ev.Time = s.now()
	s.lastActive = ev.Time
	return ev
}

func (s *Session) deliver(ev Event) {
	if s.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		if err := s.journal.RecordEvent(ctx, ev); err != nil {
			s.logger.Warn("session: journal event failed", "seq", ev.Seq, "error", err)
		}
		cancel()
	}
	s.metrics.SessionEvent(string(ev.Type))
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
		s.logger.Debug("session: event dropped, session abandoned", "seq", ev.Seq, "type", ev.Type)
	}
}
