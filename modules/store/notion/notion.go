// Package notionstore provides the store.notion module: the workspace API
// client shared by every tool.
package notionstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pagesmith/pagesmith/internal/core"
	"github.com/pagesmith/pagesmith/internal/notion"
	"github.com/pagesmith/pagesmith/internal/telemetry"
)

// ServiceName is the AppContext service the client is published under.
const ServiceName = "store.notion"

const verifyTimeout = 10 * time.Second

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Reloader     = (*Module)(nil)
)

// Config is the client configuration plus module options.
type Config struct {
	notion.Config `yaml:",inline"`

	// VerifyOnStart checks the token against the API when the app starts.
	VerifyOnStart bool `yaml:"verify_on_start"`
}

// Module owns the workspace client.
type Module struct {
	config Config
	client *notion.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.notion",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("store.notion: decode config: %w", err)
	}
	m.config.Defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.Defaults()
	m.logger = ctx.Logger

	opts := []notion.Option{notion.WithLogger(ctx.Logger)}
	if metrics, ok := core.ServiceAs[*telemetry.Metrics](ctx, telemetry.ServiceName); ok {
		opts = append(opts, notion.WithMetrics(metrics))
	}
	m.client = notion.NewClient(m.config.Config, opts...)
	ctx.RegisterService(ServiceName, notion.API(m.client))
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.Config.Validate()
}

// Start implements core.Starter.
func (m *Module) Start() error {
	if !m.config.VerifyOnStart {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()
	me, err := m.client.Me(ctx)
	if err != nil {
		return fmt.Errorf("store.notion: verifying token: %w", err)
	}
	m.logger.Info("store.notion: connected", "bot", me.Name, "id", me.ID)
	return nil
}

// Reload implements core.Reloader. A rotated token, base URL, API version
// or page size takes effect on the next request; requests already in
// flight finish with the settings they started with.
func (m *Module) Reload(node *yaml.Node) error {
	var next Config
	if node != nil {
		if err := node.Decode(&next); err != nil {
			return fmt.Errorf("store.notion: decode config: %w", err)
		}
	}
	next.Defaults()
	if err := m.client.Reconfigure(next.Config); err != nil {
		return fmt.Errorf("store.notion: %w", err)
	}
	m.config = next
	m.logger.Info("store.notion: settings reloaded", "base_url", next.BaseURL, "page_size", next.PageSize)
	return nil
}

// Client returns the provisioned client.
func (m *Module) Client() *notion.Client {
	return m.client
}
