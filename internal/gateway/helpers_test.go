package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pagesmith/pagesmith/internal/security"
	"github.com/pagesmith/pagesmith/internal/security/securitytest"
	"github.com/pagesmith/pagesmith/internal/session"
	"github.com/pagesmith/pagesmith/internal/telemetry"
	"github.com/pagesmith/pagesmith/internal/tool"
	"github.com/pagesmith/pagesmith/internal/tool/tooltest"
)

type testEnv struct {
	gw     *Gateway
	srv    *httptest.Server
	audit  func() []security.AuditEvent
	tools  *tool.Registry
	manage *session.Manager
}

// newTestEnv serves a gateway wired to a real registry and session manager.
// Without extra tools the registry holds get_page_text and append_content
// mocks.
func newTestEnv(t *testing.T, cfg Config, limits security.RateLimitConfig, tools ...tool.Tool) *testEnv {
	t.Helper()

	if len(tools) == 0 {
		tools = []tool.Tool{
			tooltest.SimpleTool("get_page_text", tool.SideEffectRead),
			tooltest.SimpleTool("append_content", tool.SideEffectWrite),
		}
	}
	reg := tool.NewRegistry()
	for _, tl := range tools {
		if err := reg.Register(tl); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	mgr := session.NewManager(reg, session.Config{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})

	cfg.defaults()
	audit, events := securitytest.NewTestAuditLogger()
	g := &Gateway{
		config:    cfg,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		audit:     audit,
		limiter:   security.NewRateLimiter(limits),
		sessions:  mgr,
		tools:     reg,
		metrics:   telemetry.NewMetrics(),
		startedAt: time.Now(),
	}
	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)

	return &testEnv{gw: g, srv: srv, audit: events, tools: reg, manage: mgr}
}

// do sends a request and decodes a JSON response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatal(err)
			}
			rd = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequestWithContext(t.Context(), method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if token := e.gw.config.Auth.BearerToken; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// createSession creates a session and returns its ID.
func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	var info session.Info
	if code := e.do(t, http.MethodPost, "/api/sessions", nil, &info); code != http.StatusCreated {
		t.Fatalf("create session: status %d", code)
	}
	return info.ID
}

func mustYAMLNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode}
	}
	return doc.Content[0]
}

// freeAddr returns a free TCP address on localhost.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

func newRecorder() *httptest.ResponseRecorder { return httptest.NewRecorder() }

func mustRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequestWithContext(t.Context(), method, path, nil)
}
