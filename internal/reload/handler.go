package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pagesmith/pagesmith/internal/config"
	"github.com/pagesmith/pagesmith/internal/core"
)

// ErrRestartRequired is returned when the new configuration adds or
// removes modules. Nothing is applied in that case.
var ErrRestartRequired = errors.New("module set changed, restart required")

// Applier pushes one process-wide setting (log level, tool policy, the
// redactor's secret list) from a validated configuration into the
// running process.
type Applier func(cfg *config.Config) error

// Handler applies a new configuration to a running process. It remembers
// the last configuration it applied successfully and only hands changed
// module sections to their modules.
type Handler struct {
	app      *core.App
	logger   *slog.Logger
	appliers []Applier

	mu      sync.Mutex
	current *config.Config
}

// NewHandler creates a reload handler. current is the configuration the
// process was built from.
func NewHandler(app *core.App, current *config.Config, logger *slog.Logger, appliers ...Applier) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		app:      app,
		logger:   logger,
		appliers: appliers,
		current:  current,
	}
}

// HandleReload loads the file at configPath, validates it and applies it.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.HandleReloadFromConfig(ctx, cfg)
}

// HandleReloadFromConfig applies an already validated configuration.
// When any step fails the handler keeps its previous baseline, so the next
// reload of the same file retries every step.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	diff := config.DiffModules(h.current, cfg)
	if diff.Restart() {
		return fmt.Errorf("%w (added: %v, removed: %v)", ErrRestartRequired, diff.Added, diff.Removed)
	}
	if stale := restartOnly(h.current, cfg); len(stale) > 0 {
		h.logger.Warn("settings changed but only apply after a restart", "sections", stale)
	}

	var errs []error
	for _, apply := range h.appliers {
		if err := apply(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	if len(diff.Changed) > 0 {
		sections := make(map[string]*yaml.Node, len(diff.Changed))
		for _, id := range diff.Changed {
			node := cfg.Modules[id]
			sections[id] = &node
		}
		if err := h.app.ReloadModules(sections); err != nil {
			errs = append(errs, fmt.Errorf("reloading modules: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	h.current = cfg
	h.logger.Info("configuration reloaded", "modules_changed", diff.Changed)
	return nil
}

// restartOnly names the top-level sections that differ between prev and
// next but are read once at startup.
func restartOnly(prev, next *config.Config) []string {
	var out []string
	check := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	check("data_dir", prev.DataDir, next.DataDir)
	check("logging.format", prev.Logging.Format, next.Logging.Format)
	check("sessions", prev.Sessions, next.Sessions)
	check("chunker", prev.Chunker, next.Chunker)
	check("telemetry", prev.Telemetry, next.Telemetry)
	check("security", prev.Security, next.Security)
	check("reload", prev.Reload, next.Reload)

	pt, nt := prev.Tools, next.Tools
	pt.Policy, nt.Policy = next.Tools.Policy, next.Tools.Policy
	check("tools", pt, nt)
	return out
}
