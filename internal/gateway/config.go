package gateway

import "time"

// Config holds HTTP gateway configuration.
type Config struct {
	Bind string     `yaml:"bind"`
	Auth AuthConfig `yaml:"auth"`

	// MCP mounts the streamable MCP transport at /mcp. Defaults to true.
	MCP *bool `yaml:"mcp,omitempty"`

	// MaxArgsBytes caps the arguments of a submitted call.
	MaxArgsBytes int `yaml:"max_args_bytes"`

	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is zero by default: event streams stay open for the
	// lifetime of a session.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// CloseTimeout bounds how long DELETE /api/sessions/{id} waits for
	// the session to drain before answering 202.
	CloseTimeout    time.Duration `yaml:"close_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8000"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 2 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

func (c Config) mcpEnabled() bool {
	return c.MCP == nil || *c.MCP
}

// AuthConfig configures authentication for /api and /mcp.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
