// Package gateway serves the HTTP surface of pagesmith: health and metrics,
// the tool catalog, session management with websocket event streams, and
// the MCP transport. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pagesmith/pagesmith/internal/core"
	"github.com/pagesmith/pagesmith/internal/mcpserver"
	"github.com/pagesmith/pagesmith/internal/security"
	"github.com/pagesmith/pagesmith/internal/session"
	"github.com/pagesmith/pagesmith/internal/telemetry"
	"github.com/pagesmith/pagesmith/internal/tool"
)

// Security services the gateway picks up when registered.
const (
	AuditServiceName   = "security.audit"
	LimiterServiceName = "security.ratelimiter"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// resolves it as a service.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	audit     *security.AuditLogger
	limiter   *security.RateLimiter
	startedAt time.Time

	// Resolved at Start() via the service registry.
	sessions *session.Manager
	tools    *tool.Registry
	metrics  *telemetry.Metrics
	mcp      http.Handler

	// streams holds the IDs of sessions with an attached event subscriber.
	streams sync.Map
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.audit, _ = core.ServiceAs[*security.AuditLogger](ctx, AuditServiceName)
	g.limiter, _ = core.ServiceAs[*security.RateLimiter](ctx, LimiterServiceName)
	return nil
}

// Validate implements core.Validator. A non-loopback bind requires auth.
func (g *Gateway) Validate() error {
	addr, err := net.ResolveTCPAddr("tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if !g.config.Auth.IsConfigured() && (addr.IP == nil || !addr.IP.IsLoopback()) {
		return fmt.Errorf("gateway: bind %s is not loopback and no auth is configured", g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves the session manager and the
// tool registry, which are registered after modules are loaded, and
// starts the HTTP server.
func (g *Gateway) Start() error {
	var ok bool
	if g.sessions, ok = core.ServiceAs[*session.Manager](g.appCtx, session.ServiceName); !ok {
		return errors.New("gateway: session manager not registered")
	}
	if g.tools, ok = core.ServiceAs[*tool.Registry](g.appCtx, tool.ServiceName); !ok {
		return errors.New("gateway: tool registry not registered")
	}
	g.metrics, _ = core.ServiceAs[*telemetry.Metrics](g.appCtx, telemetry.ServiceName)
	if g.config.mcpEnabled() {
		g.mcp, _ = core.ServiceAs[http.Handler](g.appCtx, mcpserver.ServiceName)
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.ReadTimeout,
		ReadTimeout:       g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String(), "mcp", g.mcp != nil)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// Interface guards.
var (
	_ core.Module       = (*Gateway)(nil)
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)
