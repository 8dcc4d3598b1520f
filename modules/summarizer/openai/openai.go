// Package openai provides the summarizer.openai module: a chat-completion
// summarizer backing the summarize_page tool. It works with any server
// implementing the OpenAI chat completions API via base_url.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	goopenai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/pagesmith/pagesmith/internal/core"
	"github.com/pagesmith/pagesmith/internal/doctools"
)

// ServiceName is the AppContext service the summarizer is published under.
const ServiceName = "summarizer"

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("summarizer.openai: empty completion")

func init() {
	core.RegisterModule(&Summarizer{})
}

// Compile-time interface guards.
var (
	_ doctools.Summarizer = (*Summarizer)(nil)
	_ core.Configurable   = (*Summarizer)(nil)
	_ core.Provisioner    = (*Summarizer)(nil)
	_ core.Validator      = (*Summarizer)(nil)
	_ core.Reloader       = (*Summarizer)(nil)
)

// Summarizer condenses text with a chat completion.
type Summarizer struct {
	config  Config
	backend atomic.Pointer[backend]
	logger  *slog.Logger
}

// backend pairs settings with the client built from them. Reload swaps
// the pair as a whole.
type backend struct {
	config Config
	client *goopenai.Client
}

func newBackend(c Config) *backend {
	cfg := goopenai.DefaultConfig(c.key())
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	return &backend{config: c, client: goopenai.NewClientWithConfig(cfg)}
}

// ModuleInfo implements core.Module.
func (s *Summarizer) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "summarizer.openai",
		New: func() core.Module { return &Summarizer{} },
	}
}

// Configure implements core.Configurable.
func (s *Summarizer) Configure(node *yaml.Node) error {
	if err := node.Decode(&s.config); err != nil {
		return fmt.Errorf("summarizer.openai: decode config: %w", err)
	}
	s.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (s *Summarizer) Provision(ctx *core.AppContext) error {
	s.config.defaults()
	s.logger = ctx.Logger
	s.backend.Store(newBackend(s.config))

	ctx.RegisterService(ServiceName, s)
	return nil
}

// Validate implements core.Validator.
func (s *Summarizer) Validate() error {
	return s.config.validate()
}

// Reload implements core.Reloader. The new key, model and limits apply to
// the next Summarize call.
func (s *Summarizer) Reload(node *yaml.Node) error {
	var next Config
	if node != nil {
		if err := node.Decode(&next); err != nil {
			return fmt.Errorf("summarizer.openai: decode config: %w", err)
		}
	}
	next.defaults()
	if err := next.validate(); err != nil {
		return err
	}
	s.backend.Store(newBackend(next))
	s.config = next
	s.logger.Info("summarizer.openai: settings reloaded", "model", next.Model, "base_url", next.BaseURL)
	return nil
}

// Summarize implements doctools.Summarizer.
func (s *Summarizer) Summarize(ctx context.Context, instruction, text string) (string, error) {
	b := s.backend.Load()
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	text = truncateRunes(text, b.config.MaxInputRunes)
	resp, err := b.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:     b.config.Model,
		MaxTokens: b.config.MaxTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: instruction},
			{Role: goopenai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarizer.openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	s.logger.Debug("summarizer: completion done",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// truncateRunes cuts s to at most n runes. n <= 0 disables truncation.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
