package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pagesmith/pagesmith/internal/config"
	"github.com/pagesmith/pagesmith/pkg/app"
)

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(flags), configInitCmd(flags))
	return cmd
}

func configCheckCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and load every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.configPath = args[0]
			}
			return withRuntime(cmd.Context(), flags, func(rt *app.Runtime) error {
				out := cmd.OutOrStdout()
				ids := config.Resolve(rt.Config)
				fmt.Fprintf(out, "Configuration OK: %s (%d modules, %d tools)\n", rt.ConfigPath, len(ids), len(rt.Tools.Names()))
				for _, id := range ids {
					fmt.Fprintf(out, "  %s\n", id)
				}
				return nil
			})
		},
	}
}

// initAnswers are collected by the config init wizard.
type initAnswers struct {
	TokenFromEnv bool
	Token        string
	LogFormat    string
	Journal      bool
	Retention    string
	Summarizer   bool
	Gateway      bool
	Bind         string
	BearerToken  string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		TokenFromEnv: true,
		LogFormat:    "text",
		Journal:      true,
		Retention:    "720h",
		Gateway:      true,
		Bind:         "127.0.0.1:8000",
	}
}

func configInitCmd(flags *globalFlags) *cobra.Command {
	var (
		force       bool
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = app.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := defaultAnswers()
			if interactive {
				if err := runWizard(&answers); err != nil {
					return err
				}
			}
			data, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			return printNextSteps(cmd.OutOrStdout(), path, answers)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", true, "Ask questions instead of writing defaults")
	return cmd
}

func runWizard(a *initAnswers) error {
	notEmpty := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("required")
		}
		return nil
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Read the Notion token from $NOTION_TOKEN?").
				Description("Keeps the secret out of the file.").
				Value(&a.TokenFromEnv),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Notion integration token").
				EchoMode(huh.EchoModePassword).
				Validate(notEmpty).
				Value(&a.Token),
		).WithHideFunc(func() bool { return a.TokenFromEnv }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log format").
				Options(huh.NewOptions("text", "json")...).
				Value(&a.LogFormat),
			huh.NewConfirm().
				Title("Keep a SQLite journal of session calls and events?").
				Value(&a.Journal),
			huh.NewConfirm().
				Title("Enable summarize_page (needs $OPENAI_API_KEY)?").
				Value(&a.Summarizer),
			huh.NewConfirm().
				Title("Serve the HTTP gateway (REST, websocket events, MCP)?").
				Value(&a.Gateway),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway listen address").
				Validate(notEmpty).
				Value(&a.Bind),
			huh.NewInput().
				Title("Gateway bearer token").
				Description("Leave empty to reference $PAGESMITH_TOKEN.").
				EchoMode(huh.EchoModePassword).
				Value(&a.BearerToken),
		).WithHideFunc(func() bool { return !a.Gateway }),
	)
	return form.Run()
}

type initFile struct {
	Version string      `yaml:"version"`
	Logging initLogging `yaml:"logging"`
	Modules initModules `yaml:"modules"`
}

type initLogging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type initModules struct {
	Store      initStore       `yaml:"store.notion"`
	Journal    *initJournal    `yaml:"journal.sqlite,omitempty"`
	Summarizer *initSummarizer `yaml:"summarizer.openai,omitempty"`
	Gateway    *initGateway    `yaml:"gateway.http,omitempty"`
}

type initStore struct {
	Token         string `yaml:"token"`
	VerifyOnStart bool   `yaml:"verify_on_start"`
}

type initJournal struct {
	Retention string `yaml:"retention,omitempty"`
}

type initSummarizer struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

type initGateway struct {
	Bind string   `yaml:"bind"`
	Auth initAuth `yaml:"auth"`
}

type initAuth struct {
	BearerToken string `yaml:"bearer_token"`
}

// renderConfig turns wizard answers into a configuration file.
func renderConfig(a initAnswers) ([]byte, error) {
	f := initFile{
		Version: "1",
		Logging: initLogging{Level: "info", Format: a.LogFormat},
	}
	f.Modules.Store = initStore{Token: "${NOTION_TOKEN}", VerifyOnStart: true}
	if !a.TokenFromEnv {
		f.Modules.Store.Token = a.Token
	}
	if a.Journal {
		f.Modules.Journal = &initJournal{Retention: a.Retention}
	}
	if a.Summarizer {
		f.Modules.Summarizer = &initSummarizer{APIKeyEnv: "OPENAI_API_KEY", Model: "gpt-4o"}
	}
	if a.Gateway {
		token := a.BearerToken
		if token == "" {
			token = "${PAGESMITH_TOKEN}"
		}
		f.Modules.Gateway = &initGateway{Bind: a.Bind, Auth: initAuth{BearerToken: token}}
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	header := "# pagesmith configuration. ${VAR} and ${VAR:-default} are expanded,\n# and a .env file next to this one is loaded first.\n"
	return append([]byte(header), data...), nil
}

func printNextSteps(w io.Writer, path string, a initAnswers) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Wrote %s\n", path)
	if a.TokenFromEnv {
		b.WriteString("Set NOTION_TOKEN (or put it in a .env file next to the config).\n")
	}
	if a.Summarizer {
		b.WriteString("Set OPENAI_API_KEY for summarize_page.\n")
	}
	if a.Gateway && a.BearerToken == "" {
		b.WriteString("Set PAGESMITH_TOKEN to protect the gateway API.\n")
	}
	fmt.Fprintf(&b, "Check it with: pagesmith config check %s\n", path)
	_, err := io.WriteString(w, b.String())
	return err
}
