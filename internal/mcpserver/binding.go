package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pagesmith/pagesmith/internal/session"
	"github.com/pagesmith/pagesmith/internal/tool"
)

// anonymousClient keys requests that carry no client session ID, such as
// stateless HTTP requests or messages handled in process.
const anonymousClient = "anonymous"

// waiter is one request waiting for its call's terminal event.
type waiter struct {
	progress func(tool.Progress)
	result   chan session.Event
}

// binding ties an MCP client to the dispatch session its calls run in.
// A drain goroutine routes the session's events to the waiting requests.
type binding struct {
	client string
	sess   *session.Session

	mu      sync.Mutex
	waiters map[string]*waiter
}

func (b *binding) register(callID string, progress func(tool.Progress)) *waiter {
	w := &waiter{progress: progress, result: make(chan session.Event, 1)}
	b.mu.Lock()
	b.waiters[callID] = w
	b.mu.Unlock()
	return w
}

func (b *binding) forget(callID string) {
	b.mu.Lock()
	delete(b.waiters, callID)
	b.mu.Unlock()
}

// route hands ev to the request waiting on its call, if any.
func (b *binding) route(ev session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.waiters[ev.CallID]
	if !ok {
		return
	}
	if ev.Type == session.EventPartial {
		if w.progress != nil {
			w.progress(tool.Progress{Message: ev.Content, Data: ev.Data})
		}
		return
	}
	delete(b.waiters, ev.CallID)
	w.result <- ev
}

// abort fails every request still waiting once the stream has closed.
func (b *binding) abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, w := range b.waiters {
		delete(b.waiters, id)
		w.result <- session.Event{
			Type:    session.EventCancelled,
			Session: b.sess.ID(),
			CallID:  id,
			Error:   &session.ErrorInfo{Kind: session.KindCancelled, Message: "session ended before the call finished"},
		}
	}
}

func clientID(ctx context.Context) string {
	if cs := server.ClientSessionFromContext(ctx); cs != nil && cs.SessionID() != "" {
		return cs.SessionID()
	}
	return anonymousClient
}

// bindingFor returns the client's binding, creating its session on first use.
func (s *Server) bindingFor(ctx context.Context) (*binding, error) {
	key := clientID(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bindings[key]; ok {
		return b, nil
	}
	sess, err := s.sessions.Create()
	if err != nil {
		return nil, err
	}
	b := &binding{client: key, sess: sess, waiters: make(map[string]*waiter)}
	s.bindings[key] = b
	go s.drain(b)
	s.logger.Debug("mcp: client bound to session", "client", key, "session", sess.ID())
	return b, nil
}

func (s *Server) drain(b *binding) {
	for ev := range b.sess.Events() {
		if ev.CallID != "" {
			b.route(ev)
		}
	}
	s.unbind(b)
	b.abort()
}

func (s *Server) unbind(b *binding) {
	s.mu.Lock()
	if s.bindings[b.client] == b {
		delete(s.bindings, b.client)
	}
	s.mu.Unlock()
}

// release cancels the session of a client that went away. In-flight calls
// stop at their next checkpoint.
func (s *Server) release(client string) {
	s.mu.Lock()
	b, ok := s.bindings[client]
	delete(s.bindings, client)
	s.mu.Unlock()
	if ok {
		s.logger.Debug("mcp: client gone, cancelling session", "client", client, "session", b.sess.ID())
		b.sess.Cancel()
	}
}

// dispatch submits a call and waits for its terminal event. A session that
// ended between lookup and submit is replaced once. If ctx ends first the
// call keeps running in the session and its result is still logged.
func (s *Server) dispatch(ctx context.Context, name string, args json.RawMessage, progress func(tool.Progress)) (session.Event, error) {
	for attempt := 0; ; attempt++ {
		b, err := s.bindingFor(ctx)
		if err != nil {
			return session.Event{}, err
		}

		id := uuid.NewString()
		w := b.register(id, progress)
		if _, err := b.sess.Submit(session.ToolCall{ID: id, Tool: name, Args: args}); err != nil {
			b.forget(id)
			if attempt == 0 && (errors.Is(err, session.ErrClosed) || errors.Is(err, session.ErrCancelled)) {
				s.unbind(b)
				continue
			}
			return session.Event{}, err
		}

		select {
		case ev := <-w.result:
			return ev, nil
		case <-ctx.Done():
			b.forget(id)
			return session.Event{}, ctx.Err()
		}
	}
}
