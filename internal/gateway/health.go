package gateway

import (
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"` // "ok" or "degraded"
	Sessions int    `json:"sessions"`
	Tools    int    `json:"tools"`
}

// handleHealth returns 200 when the session manager and the registry are
// wired, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if g.sessions != nil {
			resp.Sessions = len(g.sessions.List())
		} else {
			resp.Status = "degraded"
		}
		if g.tools != nil {
			resp.Tools = len(g.tools.Names())
		} else {
			resp.Status = "degraded"
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
