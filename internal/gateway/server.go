package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pagesmith/pagesmith/internal/mcpserver"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.instrument)

	// Public: no auth required.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
		}

		if g.mcp != nil {
			r.Handle(mcpserver.EndpointPath, g.mcp)
		}

		r.Route("/api", func(r chi.Router) {
			r.Get("/status", g.handleStatus())
			r.Get("/tools", g.handleListTools())
			r.Get("/tools/{name}", g.handleGetTool())

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", g.handleListSessions())
				r.Post("/", g.handleCreateSession())
				r.Get("/{id}", g.handleGetSession())
				r.Delete("/{id}", g.handleCloseSession())
				r.Post("/{id}/calls", g.handleSubmitCall())
				r.Post("/{id}/cancel", g.handleCancelSession())
				r.Get("/{id}/log", g.handleSessionLog())
				r.Get("/{id}/events", g.handleEvents())
			})
		})
	})

	return r
}

// instrument counts requests by route pattern once the handler returns.
func (g *Gateway) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		g.metrics.HTTPRequest(route, r.Method, status)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
