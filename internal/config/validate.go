package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/pagesmith/pagesmith/internal/core"
)

// RequiredModule must be configured: every tool needs the remote store.
const RequiredModule = "store.notion"

// Validate checks the structural validity of a Config.
// It verifies the version field, that every module ID is registered,
// that the store module is present, and the settings of each section.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}
	if _, ok := cfg.Modules[RequiredModule]; !ok {
		errs = append(errs, fmt.Errorf("config: module %q must be configured", RequiredModule))
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: logging.format %q is not text or json", cfg.Logging.Format))
	}

	if err := cfg.Sessions.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: sessions: %w", err))
	}
	if expr := cfg.Sessions.PruneSchedule; expr != "" {
		if _, err := cron.ParseStandard(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: sessions.prune_schedule %q: %w", expr, err))
		}
	}
	if err := cfg.Tools.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: tools.policy: %w", err))
	}
	if cfg.Tools.MaxDepth < 0 {
		errs = append(errs, errors.New("config: tools.max_depth must not be negative"))
	}
	if cfg.Tools.PageSize < 0 || cfg.Tools.PageSize > 100 {
		errs = append(errs, errors.New("config: tools.page_size must be between 0 and 100"))
	}
	if cfg.Chunker.MaxChildren < 0 || cfg.Chunker.MaxBlocks < 0 || cfg.Chunker.MaxPayloadBytes < 0 {
		errs = append(errs, errors.New("config: chunker limits must not be negative"))
	}
	if cfg.Reload.PollInterval < 0 {
		errs = append(errs, errors.New("config: reload.poll_interval must not be negative"))
	}
	if r := cfg.Telemetry.Tracing.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.tracing.sample_ratio %v is outside [0, 1]", r))
	}

	return errors.Join(errs...)
}
