package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveTool("get_page_text", "ok", time.Second)
	m.RemoteRequest("list_children", 200)
	m.RemoteRetry("list_children")
	m.WriteBatch(true)
	m.SessionOpened()
	m.SessionClosed()
	m.SessionEvent("done")
	m.SessionsPruned(2)
	m.HTTPRequest("/health", "GET", 200)
	if m.Registry() != nil {
		t.Error("nil metrics should have nil registry")
	}
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.ObserveTool("get_page_text", "ok", 20*time.Millisecond)
	m.RemoteRequest("list_children", 429)
	m.RemoteRequest("list_children", 0)
	m.WriteBatch(false)
	m.SessionsPruned(3)
	m.HTTPRequest("/api/sessions/{id}/calls", "POST", 202)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`pagesmith_tool_calls_total{outcome="ok",tool="get_page_text"} 1`,
		`pagesmith_remote_requests_total{operation="list_children",status="429"} 1`,
		`pagesmith_remote_requests_total{operation="list_children",status="error"} 1`,
		`pagesmith_write_batches_total{outcome="failed"} 1`,
		`pagesmith_sessions_pruned_total 3`,
		`pagesmith_http_requests_total{method="POST",route="/api/sessions/{id}/calls",status="202"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestSetupTracing_Disabled(t *testing.T) {
	t.Parallel()

	tp, shutdown, err := SetupTracing(context.Background(), TracingConfig{})
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	if tp == nil {
		t.Fatal("expected a no-op provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
