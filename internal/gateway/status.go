package gateway

import (
	"net/http"
	"time"

	"github.com/pagesmith/pagesmith/internal/session"
)

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Uptime      int64                 `json:"uptime_seconds"`
	Sessions    int                   `json:"sessions"`
	ByState     map[session.State]int `json:"by_state"`
	InFlight    int                   `json:"in_flight"`
	Tools       int                   `json:"tools"`
	AuditErrors int64                 `json:"audit_write_errors"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:  int64(time.Since(g.startedAt) / time.Second),
			ByState: make(map[session.State]int),
			Tools:   len(g.tools.Names()),
		}
		for _, info := range g.sessions.List() {
			resp.Sessions++
			resp.ByState[info.State]++
			resp.InFlight += info.InFlight
		}
		if g.audit != nil {
			resp.AuditErrors = g.audit.WriteErrors()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
