package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const defaultSearchLimit = 10

// handleListTools returns the catalog, or the best matches for ?q=.
func (g *Gateway) handleListTools() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			writeJSON(w, http.StatusOK, g.tools.Catalog())
			return
		}

		limit := defaultSearchLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		found, err := g.tools.Search(q, limit)
		if err != nil {
			g.logger.Error("gateway: tool search failed", "query", q, "error", err)
			writeError(w, http.StatusInternalServerError, "search failed")
			return
		}
		writeJSON(w, http.StatusOK, found)
	}
}

func (g *Gateway) handleGetTool() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		for _, d := range g.tools.Catalog() {
			if d.Name == name {
				writeJSON(w, http.StatusOK, d)
				return
			}
		}
		writeError(w, http.StatusNotFound, "tool not found: "+name)
	}
}
