// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for pagesmith.
package config

import (
	"time"

	"github.com/pagesmith/pagesmith/internal/chunker"
	"github.com/pagesmith/pagesmith/internal/security"
	"github.com/pagesmith/pagesmith/internal/session"
	"github.com/pagesmith/pagesmith/internal/telemetry"
	"github.com/pagesmith/pagesmith/internal/tool"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir overrides the persistent data directory.
	DataDir string `yaml:"data_dir,omitempty"`

	Logging   LoggingConfig   `yaml:"logging"`
	Sessions  session.Config  `yaml:"sessions"`
	Tools     ToolsConfig     `yaml:"tools"`
	Chunker   chunker.Limits  `yaml:"chunker"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Security  SecurityConfig  `yaml:"security"`
	Reload    ReloadConfig    `yaml:"reload"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "store.notion").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LoggingConfig selects the root log handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is text or json. Defaults to text.
	Format string `yaml:"format"`
}

// ToolsConfig tunes the workspace tools.
type ToolsConfig struct {
	Policy tool.Policy `yaml:"policy"`

	// MaxDepth and PageSize are the get_page_text defaults.
	MaxDepth int `yaml:"max_depth"`
	PageSize int `yaml:"page_size"`

	// Summarize enables summarize_page when a summarizer module is loaded.
	Summarize *bool `yaml:"summarize,omitempty"`
}

// SummarizeEnabled reports whether summarize_page should be registered.
func (c ToolsConfig) SummarizeEnabled() bool {
	return c.Summarize == nil || *c.Summarize
}

// ReloadConfig controls live reconfiguration. SIGHUP always triggers a
// reload; Watch adds polling of the configuration file.
type ReloadConfig struct {
	Watch bool `yaml:"watch"`

	// PollInterval defaults to 5s.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// TelemetryConfig holds tracing settings. Metrics are always collected.
type TelemetryConfig struct {
	Tracing telemetry.TracingConfig `yaml:"tracing"`
}

// SecurityConfig holds settings for the HTTP surface.
type SecurityConfig struct {
	RateLimits security.RateLimitConfig `yaml:"rate_limits"`

	// AuditLog is a JSONL file receiving audit events. Relative paths are
	// resolved against the data directory. Empty disables the audit file.
	AuditLog string `yaml:"audit_log,omitempty"`
}
