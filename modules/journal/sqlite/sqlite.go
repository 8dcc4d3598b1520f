// Package sqlite implements the journal.sqlite module: a persistent
// record of every session call and emitted event. It uses
// modernc.org/sqlite (pure Go, no CGO) with WAL mode.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pagesmith/pagesmith/internal/core"
	"github.com/pagesmith/pagesmith/internal/session"
)

// ServiceName is the AppContext service the journal is published under.
const ServiceName = "session.journal"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ session.Journal   = (*Journal)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module provides a SQLite-backed session journal.
type Module struct {
	config  Config
	logger  *slog.Logger
	journal *Journal
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "journal.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	j, err := Open(context.TODO(), m.config.Path, m.config.walEnabled(), m.config.BusyTimeout)
	if err != nil {
		return err
	}
	m.journal = j
	ctx.RegisterService(ServiceName, j)

	m.logger.Info("sqlite journal provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.journal.Ping(context.TODO()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite journal stopping")
	if m.journal != nil {
		return m.journal.Close()
	}
	return nil
}

// Retention returns the configured retention and the schedule of the job
// enforcing it. A zero retention means rows are kept forever.
func (m *Module) Retention() (time.Duration, string) {
	return m.config.Retention, m.config.TrimSchedule
}

// Journal returns the provisioned journal.
func (m *Module) Journal() *Journal {
	return m.journal
}
