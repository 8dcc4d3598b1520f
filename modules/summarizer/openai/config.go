package openai

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultModel         = "gpt-4o"
	defaultMaxTokens     = 512
	defaultTimeout       = 60 * time.Second
	defaultMaxInputRunes = 60000
)

// Config holds the summarizer configuration.
type Config struct {
	// APIKey authenticates requests. APIKeyEnv names an environment
	// variable to read it from instead.
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the API root for OpenAI-compatible servers.
	BaseURL string `yaml:"base_url"`

	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`

	// MaxInputRunes truncates page text before it is sent.
	MaxInputRunes int `yaml:"max_input_runes"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxInputRunes == 0 {
		c.MaxInputRunes = defaultMaxInputRunes
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// key returns the configured API key, resolving APIKeyEnv.
func (c *Config) key() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}

func (c *Config) validate() error {
	var errs []error
	if c.key() == "" {
		errs = append(errs, errors.New("summarizer.openai: one of api_key or api_key_env is required"))
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("summarizer.openai: base_url %q must be an http(s) URL", c.BaseURL))
		}
	}
	if c.MaxTokens < 0 {
		errs = append(errs, errors.New("summarizer.openai: max_tokens must not be negative"))
	}
	if c.MaxInputRunes < 0 {
		errs = append(errs, errors.New("summarizer.openai: max_input_runes must not be negative"))
	}
	return errors.Join(errs...)
}
