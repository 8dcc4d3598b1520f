package mcpserver

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// syncBuffer is a bytes.Buffer safe for one writer and one polling reader.
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

// fakeClient is an initialized MCP client session with a buffered
// notification channel.
type fakeClient struct {
	id    string
	notes chan mcp.JSONRPCNotification
}

func newFakeClient(id string) *fakeClient {
	return &fakeClient{id: id, notes: make(chan mcp.JSONRPCNotification, 16)}
}

func (c *fakeClient) Initialize()       {}
func (c *fakeClient) Initialized() bool { return true }
func (c *fakeClient) SessionID() string { return c.id }

func (c *fakeClient) NotificationChannel() chan<- mcp.JSONRPCNotification { return c.notes }

var _ server.ClientSession = (*fakeClient)(nil)

// connect registers client with s and returns a context carrying it.
func connect(t *testing.T, s *Server, client *fakeClient) context.Context {
	t.Helper()
	if err := s.MCP().RegisterSession(context.Background(), client); err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}
	return s.MCP().WithContext(context.Background(), client)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
