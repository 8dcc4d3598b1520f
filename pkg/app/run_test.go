package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pagesmith/pagesmith/internal/security"
	"github.com/pagesmith/pagesmith/internal/session"
	"github.com/pagesmith/pagesmith/internal/tool"
)

const testToken = "ntn_0123456789abcdefghijklmnop"

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "pagesmith.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "pagesmith")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(cfgDir, "pagesmith.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
	if def := DefaultConfigPath(); def != cfgPath {
		t.Errorf("DefaultConfigPath() = %q, want %q", def, cfgPath)
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Chdir(t.TempDir())

	if _, err := ResolveConfigPath(); err == nil {
		t.Error("expected error when no config file found")
	}
}

func TestDefaultDataDir_XDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	got := DefaultDataDir()
	want := "/custom/data/pagesmith"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultDataDir_Fallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	_ = os.Unsetenv("XDG_DATA_HOME")

	got := DefaultDataDir()
	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".local", "share", "pagesmith")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRun_InvalidConfigPath(t *testing.T) {
	if err := Run(RunParams{ConfigPath: "/nonexistent/config.yaml"}); err == nil {
		t.Error("expected error for invalid config path")
	}
}

func TestRun_InvalidConfigContent(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "not: valid: yaml: [")
	if err := Run(RunParams{ConfigPath: path}); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "modules:\n  foo: {}")
	if err := Run(RunParams{ConfigPath: path}); err == nil {
		t.Error("expected validation error")
	}
}

func TestBuild_WiresRuntime(t *testing.T) {
	workspace := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/me" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"user","id":"u1","name":"pagesmith bot","type":"bot"}`))
	}))
	t.Cleanup(workspace.Close)

	dir := t.TempDir()
	path := writeConfig(t, dir, `
version: "1"
security:
  audit_log: audit.jsonl
modules:
  store.notion:
    token: `+testToken+`
    base_url: `+workspace.URL+`/v1
  journal.sqlite:
    retention: 24h
`)

	var logs bytes.Buffer
	rt, err := Build(context.Background(), RunParams{
		ConfigPath: path,
		DataDir:    filepath.Join(dir, "data"),
		LogLevel:   "debug",
		LogOutput:  &logs,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Close(ctx); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	names := rt.Tools.Names()
	for _, want := range []string{"get_page_text", "append_content", "create_table", "get_me", "search_notion"} {
		if !slices.Contains(names, want) {
			t.Errorf("tool %s not registered (have %v)", want, names)
		}
	}
	if slices.Contains(names, "summarize_page") {
		t.Error("summarize_page registered without a summarizer")
	}
	if got := rt.Scheduler.Jobs(); !slices.Equal(got, []string{"session_prune", "journal_trim"}) {
		t.Errorf("jobs = %v, want [session_prune journal_trim]", got)
	}

	out, err := rt.Tools.Invoke(context.Background(), "get_me", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Invoke get_me: %v", err)
	}
	if !strings.Contains(out.Content, "pagesmith bot") {
		t.Errorf("get_me content = %q", out.Content)
	}

	s, err := rt.Sessions.Create()
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	if _, err := s.Submit(session.ToolCall{Tool: "get_me"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("session Close: %v", err)
	}

	rt.Logger.Info("leak check", "token", testToken)
	if strings.Contains(logs.String(), testToken) {
		t.Error("token leaked into logs")
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "audit.jsonl")); err != nil {
		t.Errorf("audit log not created: %v", err)
	}
}

func TestBuild_ModuleError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
version: "1"
modules:
  store.notion:
    token: ""
`)
	_, err := Build(context.Background(), RunParams{ConfigPath: path, DataDir: dir, LogOutput: &bytes.Buffer{}})
	if err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
		check   func(t *testing.T, out string)
	}{
		{
			name:   "json",
			level:  "info",
			format: "json",
			check: func(t *testing.T, out string) {
				if !strings.HasPrefix(out, "{") {
					t.Errorf("output %q is not JSON", out)
				}
			},
		},
		{
			name:   "text filters debug",
			level:  "warn",
			format: "text",
			check: func(t *testing.T, out string) {
				if out != "" {
					t.Errorf("info record written at warn level: %q", out)
				}
			},
		},
		{name: "bad level", level: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			logger, _, err := newLogger(&buf, tt.level, tt.format, security.NewRedactor())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			logger.Info("hello")
			tt.check(t, buf.String())
		})
	}
}

func TestCollectSecrets(t *testing.T) {
	t.Parallel()

	var doc yaml.Node
	src := `
store.notion:
  token: ntn_secret_value
  page_size: 100
gateway.http:
  bind: 127.0.0.1:8000
  auth:
    bearer_token: gw-token
    basic_user: admin
    basic_pass: hunter2
summarizer.openai:
  api_key: ""
`
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatal(err)
	}
	var modules map[string]yaml.Node
	if err := doc.Decode(&modules); err != nil {
		t.Fatal(err)
	}

	got := collectSecrets(modules)
	slices.Sort(got)
	want := []string{"gw-token", "hunter2", "ntn_secret_value"}
	if !slices.Equal(got, want) {
		t.Errorf("collectSecrets() = %v, want %v", got, want)
	}
}

// syncBuffer is a bytes.Buffer safe for a logger and a test reading it
// concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// workspaceRecorder serves /v1/users/me and records the bearer tokens
// it was called with.
func workspaceRecorder(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"user","id":"u1","name":"pagesmith bot","type":"bot"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(auth)
	}
}

func TestRuntime_ReloadAppliesSettings(t *testing.T) {
	workspace, seen := workspaceRecorder(t)
	const rotated = "ntn_rotated9876543210zyxwvutsrq"

	dir := t.TempDir()
	storeSection := func(token string) string {
		return "modules:\n  store.notion:\n    token: " + token + "\n    base_url: " + workspace.URL + "/v1\n"
	}
	path := writeConfig(t, dir, "version: \"1\"\n"+storeSection(testToken))

	var logs bytes.Buffer
	rt, err := Build(context.Background(), RunParams{ConfigPath: path, DataDir: dir, LogOutput: &logs})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	ctx := context.Background()

	if rt.Logger.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("debug enabled before reload")
	}

	writeConfig(t, dir, "version: \"1\"\nlogging:\n  level: debug\n"+storeSection(rotated))
	if err := rt.Reload.HandleReload(ctx, path); err != nil {
		t.Fatalf("HandleReload: %v", err)
	}
	if !rt.Logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("log level not raised to debug")
	}
	if _, err := rt.Tools.Invoke(ctx, "get_me", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("get_me after token rotation: %v", err)
	}
	if got := seen(); len(got) != 1 || got[0] != "Bearer "+rotated {
		t.Errorf("workspace saw %v, want the rotated token", got)
	}

	writeConfig(t, dir, "version: \"1\"\nlogging:\n  level: debug\ntools:\n  policy:\n    deny: [get_me]\n"+storeSection(rotated))
	if err := rt.Reload.HandleReload(ctx, path); err != nil {
		t.Fatalf("HandleReload: %v", err)
	}
	if _, err := rt.Tools.Invoke(ctx, "get_me", json.RawMessage(`{}`)); !errors.Is(err, tool.ErrDenied) {
		t.Errorf("get_me after deny: expected ErrDenied, got %v", err)
	}

	rt.Logger.Info("leak check", "note", "token is "+rotated)
	if strings.Contains(logs.String(), rotated) {
		t.Error("rotated token leaked into logs")
	}
}

func TestRunContext_WatchReloadsConfig(t *testing.T) {
	workspace, _ := workspaceRecorder(t)

	dir := t.TempDir()
	body := func(level string) string {
		return "version: \"1\"\nlogging:\n  level: " + level + "\nreload:\n  watch: true\n  poll_interval: 20ms\n" +
			"modules:\n  store.notion:\n    token: " + testToken + "\n    base_url: " + workspace.URL + "/v1\n"
	}
	path := writeConfig(t, dir, body("info"))

	logs := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- RunContext(ctx, RunParams{ConfigPath: path, DataDir: dir, LogOutput: logs}) }()

	waitForLog := func(msg string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !strings.Contains(logs.String(), msg) {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %q in logs:\n%s", msg, logs.String())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	waitForLog("pagesmith started")

	writeConfig(t, dir, body("debug"))
	waitForLog("configuration reloaded")
	if !strings.Contains(logs.String(), "trigger=file") {
		t.Error("reload was not attributed to the file watcher")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunContext: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("RunContext did not return after cancel")
	}
}
