package notion

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	defaultBaseURL        = "https://api.notion.com/v1"
	defaultVersion        = "2022-06-28"
	defaultAttemptTimeout = 30 * time.Second
	defaultMaxAttempts    = 4
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 8 * time.Second
	defaultPageSize       = 100

	// MaxPageSize is the largest page_size the API accepts.
	MaxPageSize = 100
)

// Config holds the workspace API client settings.
type Config struct {
	// Token is the integration secret (required).
	Token string `yaml:"token"`

	// BaseURL is the API root. Default: "https://api.notion.com/v1".
	BaseURL string `yaml:"base_url"`

	// Version is sent as the Notion-Version header. Default: "2022-06-28".
	Version string `yaml:"version"`

	// AttemptTimeout bounds a single HTTP attempt. Exceeding it counts as
	// one transient failure. Default: 30s.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// MaxAttempts caps attempts per request, first try included. Default: 4.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialBackoff and MaxBackoff shape the exponential retry delay.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// PageSize is used when callers pass a non-positive page size.
	PageSize int `yaml:"page_size"`
}

// Defaults fills zero-value fields.
func (c *Config) Defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Version == "" {
		c.Version = defaultVersion
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaultAttemptTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.PageSize <= 0 || c.PageSize > MaxPageSize {
		c.PageSize = defaultPageSize
	}
}

// Validate checks that required fields are set and well formed.
func (c *Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("notion: token is required"))
	}
	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("notion: invalid base_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("notion: base_url scheme must be http or https, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("notion: base_url must include a host"))
	}
	if c.InitialBackoff > c.MaxBackoff {
		errs = append(errs, fmt.Errorf("notion: initial_backoff %s exceeds max_backoff %s", c.InitialBackoff, c.MaxBackoff))
	}
	return errors.Join(errs...)
}
