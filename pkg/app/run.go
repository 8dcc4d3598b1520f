// Package app wires configuration, modules, tools and sessions into a
// runnable pagesmith process. The CLI and the OS service share it.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pagesmith/pagesmith/internal/reload"
)

const shutdownTimeout = 30 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides both the configured and the default data directory.
	DataDir string

	// LogLevel overrides logging.level from the configuration.
	LogLevel string

	// LogOutput receives log records. Defaults to stderr, which keeps
	// stdout free for the MCP stdio transport.
	LogOutput io.Writer
}

// Run starts pagesmith and blocks until SIGINT or SIGTERM. SIGHUP reloads
// the configuration file.
func Run(params RunParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, params)
}

// RunContext starts pagesmith and blocks until ctx is done, then shuts
// everything down. While running, SIGHUP and (with reload.watch) changes
// to the configuration file are applied through rt.Reload.
func RunContext(ctx context.Context, params RunParams) error {
	rt, err := Build(ctx, params)
	if err != nil {
		return err
	}
	if err := rt.Start(); err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var changes <-chan reload.Event
	if rt.Config.Reload.Watch {
		w := reload.NewWatcher(reload.WatcherConfig{
			ConfigPath:   rt.ConfigPath,
			PollInterval: rt.Config.Reload.PollInterval,
		})
		w.Start(ctx)
		defer w.Stop()
		changes = w.Events()
	}

	rt.Logger.Info("pagesmith started",
		"version", params.Version,
		"commit", params.Commit,
		"config", rt.ConfigPath,
		"jobs", rt.Scheduler.Jobs(),
	)

	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-hup:
			rt.reload(ctx, "signal")
		case <-changes:
			rt.reload(ctx, "file")
		}
	}
	rt.Logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err = rt.Close(shutdownCtx)
	rt.Logger.Info("shutdown complete")
	return err
}

func (rt *Runtime) reload(ctx context.Context, trigger string) {
	rt.Logger.Info("reloading configuration", "trigger", trigger, "config", rt.ConfigPath)
	if err := rt.Reload.HandleReload(ctx, rt.ConfigPath); err != nil {
		rt.Logger.Error("configuration reload failed, keeping previous settings",
			"trigger", trigger, "error", err)
	}
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/pagesmith/pagesmith.yaml → ~/.config/pagesmith/pagesmith.yaml → ./pagesmith.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "pagesmith", "pagesmith.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "pagesmith", "pagesmith.yaml"))
	}

	candidates = append(candidates, "pagesmith.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where `config init` writes when no path is given.
func DefaultConfigPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		return filepath.Join(xdg, "pagesmith", "pagesmith.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "pagesmith", "pagesmith.yaml")
	}
	return "pagesmith.yaml"
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/pagesmith if set, otherwise ~/.local/share/pagesmith.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "pagesmith")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "pagesmith")
}
