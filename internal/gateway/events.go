package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/pagesmith/pagesmith/internal/security"
	"github.com/pagesmith/pagesmith/internal/session"
)

// streamCommand is a client message on the event websocket.
type streamCommand struct {
	Op   string           `json:"op"` // "call", "cancel" or "close"
	Call session.ToolCall `json:"call"`
}

// streamReply acknowledges a command. It shares the socket with session
// events and is told apart by its type.
type streamReply struct {
	Type   string `json:"type"` // "ack" or "rejected"
	Op     string `json:"op"`
	CallID string `json:"call_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleEvents upgrades to a websocket and forwards the session's event
// stream until it ends. Clients may submit calls and cancel or close the
// session over the same socket. A session accepts one subscriber at a time.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.lookup(w, r)
		if !ok {
			return
		}
		if _, busy := g.streams.LoadOrStore(s.ID(), struct{}{}); busy {
			writeError(w, http.StatusConflict, "session already has an event subscriber")
			return
		}
		defer g.streams.Delete(s.ID())

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("gateway: websocket accept failed", "session", s.ID(), "error", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()
		conn.SetReadLimit(int64(g.maxBodyBytes()))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go g.readCommands(ctx, cancel, conn, s, r.RemoteAddr)

		g.logger.Debug("gateway: event subscriber attached", "session", s.ID())
		for {
			select {
			case ev, ok := <-s.Events():
				if !ok {
					_ = conn.Close(websocket.StatusNormalClosure, "session ended")
					return
				}
				if err := wsjson.Write(ctx, conn, ev); err != nil {
					g.logger.Debug("gateway: event subscriber gone", "session", s.ID(), "seq", ev.Seq, "error", err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func (g *Gateway) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, s *session.Session, remote string) {
	defer cancel()
	for {
		var cmd streamCommand
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			var ce websocket.CloseError
			if !errors.As(err, &ce) && ctx.Err() == nil {
				g.logger.Debug("gateway: reading command failed", "session", s.ID(), "error", err)
			}
			return
		}

		reply := streamReply{Type: "ack", Op: cmd.Op}
		var closing bool
		switch cmd.Op {
		case "call":
			id, _, err := g.submit(s, cmd.Call, remote)
			reply.CallID = id
			if err != nil {
				reply.Type, reply.Error = "rejected", err.Error()
			}
		case "cancel":
			s.Cancel()
			g.audit.Log(security.AuditEvent{Type: security.EventSessionCancel, SessionID: s.ID(), Remote: remote})
		case "close":
			g.audit.Log(security.AuditEvent{Type: security.EventSessionClose, SessionID: s.ID(), Remote: remote})
			closing = true
		default:
			reply.Type, reply.Error = "rejected", "unknown op "+cmd.Op
		}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			return
		}
		if closing {
			// The ack goes out before the stream can end. The event loop
			// keeps draining, so Close completes on its own.
			go func() { _ = s.Close(context.WithoutCancel(ctx)) }()
		}
	}
}
