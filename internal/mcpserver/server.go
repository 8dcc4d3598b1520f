// Package mcpserver exposes the tool catalog and the canned prompts over
// the Model Context Protocol, either as a streamable HTTP handler or on
// stdio. Tool calls are not invoked directly: each MCP client gets its own
// dispatch session and every call is submitted to it.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pagesmith/pagesmith/internal/prompt"
	"github.com/pagesmith/pagesmith/internal/session"
	"github.com/pagesmith/pagesmith/internal/tool"
)

// ServiceName is the AppContext service the HTTP handler is published under.
const ServiceName = "mcp.handler"

// EndpointPath is where the streamable HTTP transport is mounted.
const EndpointPath = "/mcp"

const instructions = "Tools for reading and editing a Notion workspace. " +
	"Write tools that fail part way report a checkpoint; pass it back as resume_from to continue."

// Catalog lists the tools to expose.
type Catalog interface {
	Catalog() []tool.Descriptor
}

// Sessions creates the dispatch sessions MCP clients are bound to.
type Sessions interface {
	Create() (*session.Session, error)
}

// Server wraps an MCP server whose tool calls run through sessions.
type Server struct {
	mcp      *server.MCPServer
	catalog  Catalog
	sessions Sessions
	logger   *slog.Logger

	mu       sync.Mutex
	bindings map[string]*binding
}

// New builds a server exposing every tool in catalog and both prompts.
// Calls are dispatched through sessions created by sessions.
func New(catalog Catalog, sessions Sessions, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		catalog:  catalog,
		sessions: sessions,
		logger:   logger,
		bindings: make(map[string]*binding),
	}
	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, cs server.ClientSession) {
		s.release(cs.SessionID())
	})
	s.mcp = server.NewMCPServer("pagesmith", version,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithInstructions(instructions),
		server.WithHooks(hooks),
		server.WithRecovery(),
	)
	for _, d := range catalog.Catalog() {
		s.mcp.AddTool(toolFor(d), s.callTool(d.Name))
	}
	s.addPrompts()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Handler returns the streamable HTTP transport, mounted at EndpointPath.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(EndpointPath))
}

// ServeStdio serves the protocol on in/out until ctx ends or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(io.Discard, "", 0))
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: stdio: %w", err)
	}
	return nil
}

func toolFor(d tool.Descriptor) mcp.Tool {
	t := mcp.NewToolWithRawSchema(d.Name, d.Description, d.Schema)
	switch d.SideEffect {
	case tool.SideEffectRead, tool.SideEffectDerived:
		t.Annotations.ReadOnlyHint = mcp.ToBoolPtr(true)
	case tool.SideEffectWrite:
		t.Annotations.ReadOnlyHint = mcp.ToBoolPtr(false)
		t.Annotations.DestructiveHint = mcp.ToBoolPtr(false)
	}
	return t
}

// callTool submits one request to the client's session and waits for the
// call's terminal event. Partial events become progress notifications.
func (s *Server) callTool(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := rawArguments(req)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
		}

		var progress func(tool.Progress)
		if req.Params.Meta != nil && req.Params.Meta.ProgressToken != nil {
			progress = s.progress(ctx, req.Params.Meta.ProgressToken)
		}

		ev, err := s.dispatch(ctx, name, args, progress)
		if err != nil {
			s.logger.Debug("mcp: call not completed", "tool", name, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		if ev.Type != session.EventToolResult {
			msg := string(ev.Type)
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			return mcp.NewToolResultError(msg), nil
		}
		return mcp.NewToolResultText(ev.Content), nil
	}
}

func (s *Server) progress(ctx context.Context, token mcp.ProgressToken) func(tool.Progress) {
	n := 0
	return func(p tool.Progress) {
		srv := server.ServerFromContext(ctx)
		if srv == nil {
			return
		}
		n++
		err := srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
			"progressToken": token,
			"progress":      n,
			"message":       p.Message,
		})
		if err != nil {
			s.logger.Debug("mcp: progress notification dropped", "error", err)
		}
	}
}

func rawArguments(req mcp.CallToolRequest) (json.RawMessage, error) {
	raw := req.GetRawArguments()
	if raw == nil {
		return json.RawMessage("{}"), nil
	}
	if m, ok := raw.(json.RawMessage); ok {
		return m, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Server) addPrompts() {
	message := mcp.WithArgument("message",
		mcp.ArgumentDescription("The user's request."),
		mcp.RequiredArgument(),
	)

	s.mcp.AddPrompt(mcp.NewPrompt(prompt.DefaultName,
		mcp.WithPromptDescription("Plan tool calls for a request against the workspace."),
		message,
	), s.renderPrompt(prompt.DefaultName))

	s.mcp.AddPrompt(mcp.NewPrompt(prompt.StructuredNotesName,
		mcp.WithPromptDescription("Answer a request as a structured guide or set of notes."),
		message,
	), s.renderPrompt(prompt.StructuredNotesName))
}

func (s *Server) renderPrompt(name string) server.PromptHandlerFunc {
	return func(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		msg := req.Params.Arguments["message"]
		if msg == "" {
			return nil, errors.New("mcpserver: message argument is required")
		}

		rendered := prompt.Render(name, msg, s.catalog.Catalog())
		out := make([]mcp.PromptMessage, 0, len(rendered))
		for _, m := range rendered {
			role := mcp.RoleUser
			if m.Role == prompt.RoleAssistant {
				role = mcp.RoleAssistant
			}
			out = append(out, mcp.NewPromptMessage(role, mcp.NewTextContent(m.Content)))
		}
		return mcp.NewGetPromptResult(name, out), nil
	}
}
