package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagesmith/pagesmith/internal/security"
	"github.com/pagesmith/pagesmith/internal/session"
)

// submitRequest is the body of POST /api/sessions/{id}/calls.
type submitRequest struct {
	ID   string          `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
	Turn int             `json:"turn"`
}

type submitResponse struct {
	CallID string `json:"call_id"`
}

func (g *Gateway) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.limiter.Allow(security.BucketSession); err != nil {
			g.audit.Log(security.AuditEvent{Type: security.EventRateLimit, Remote: r.RemoteAddr, Detail: "session create"})
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		s, err := g.sessions.Create()
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		g.audit.Log(security.AuditEvent{Type: security.EventSessionCreate, SessionID: s.ID(), Remote: r.RemoteAddr})
		writeJSON(w, http.StatusCreated, s.Info())
	}
}

func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.sessions.List())
	}
}

func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.lookup(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.Info())
	}
}

// handleCloseSession drains the session. It answers 200 once the session
// is done, or 202 if it is still draining after CloseTimeout.
func (g *Gateway) handleCloseSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.lookup(w, r)
		if !ok {
			return
		}
		g.audit.Log(security.AuditEvent{Type: security.EventSessionClose, SessionID: s.ID(), Remote: r.RemoteAddr})

		ctx, cancel := context.WithTimeout(r.Context(), g.config.CloseTimeout)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			writeJSON(w, http.StatusAccepted, s.Info())
			return
		}
		writeJSON(w, http.StatusOK, s.Info())
	}
}

func (g *Gateway) handleCancelSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.lookup(w, r)
		if !ok {
			return
		}
		s.Cancel()
		g.audit.Log(security.AuditEvent{Type: security.EventSessionCancel, SessionID: s.ID(), Remote: r.RemoteAddr})
		writeJSON(w, http.StatusAccepted, s.Info())
	}
}

func (g *Gateway) handleSessionLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.lookup(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.Log())
	}
}

func (g *Gateway) handleSubmitCall() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.lookup(w, r)
		if !ok {
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(g.maxBodyBytes())))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		var req submitRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		callID, status, err := g.submit(s, session.ToolCall(req), r.RemoteAddr)
		if err != nil {
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, submitResponse{CallID: callID})
	}
}

// submit validates and rate-limits one call before handing it to the
// session. It returns the HTTP status matching a rejection.
func (g *Gateway) submit(s *session.Session, tc session.ToolCall, remote string) (string, int, error) {
	if err := security.ValidateArgs(tc.Args, g.config.MaxArgsBytes, 0); err != nil {
		g.audit.Log(security.AuditEvent{Type: security.EventCallRejected, SessionID: s.ID(), ToolName: tc.Tool, Remote: remote, Detail: err.Error()})
		if errors.Is(err, security.ErrPayloadTooLarge) {
			return "", http.StatusRequestEntityTooLarge, err
		}
		return "", http.StatusBadRequest, err
	}
	if err := g.limiter.Allow(security.BucketCall); err != nil {
		g.audit.Log(security.AuditEvent{Type: security.EventRateLimit, SessionID: s.ID(), ToolName: tc.Tool, Remote: remote})
		return "", http.StatusTooManyRequests, err
	}

	id, err := s.Submit(tc)
	if err != nil {
		g.audit.Log(security.AuditEvent{Type: security.EventCallRejected, SessionID: s.ID(), ToolName: tc.Tool, Remote: remote, Detail: err.Error()})
		return "", statusFor(err), err
	}
	g.audit.Log(security.AuditEvent{Type: security.EventCallSubmit, SessionID: s.ID(), CallID: id, ToolName: tc.Tool, Remote: remote})
	return id, http.StatusAccepted, nil
}

func (g *Gateway) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := g.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return nil, false
	}
	return s, true
}

// maxBodyBytes leaves room for the envelope around the arguments.
func (g *Gateway) maxBodyBytes() int {
	limit := g.config.MaxArgsBytes
	if limit <= 0 {
		limit = security.DefaultMaxPayloadSize
	}
	return limit + 64<<10
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrEmptyTool):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrDuplicateCall),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, session.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, session.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
