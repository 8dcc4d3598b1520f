// Package main is the entry point for the pagesmith CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagesmith/pagesmith/internal/core"
	"github.com/pagesmith/pagesmith/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command that loads the configuration.
type globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
}

func (g *globalFlags) params() app.RunParams {
	return app.RunParams{
		ConfigPath: g.configPath,
		DataDir:    g.dataDir,
		LogLevel:   g.logLevel,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "pagesmith",
		Short:         "Tool-calling bridge between language model clients and a Notion workspace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Override the data directory")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	root.AddCommand(
		versionCmd(),
		startCmd(flags),
		configCmd(flags),
		toolsCmd(flags),
		readCmd(flags),
		mcpCmd(flags),
		serviceCmd(flags),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pagesmith %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start pagesmith with all configured modules",
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Run(flags.params())
		},
	}
}

// withRuntime builds a runtime for a one-off command and always closes it.
func withRuntime(ctx context.Context, flags *globalFlags, fn func(rt *app.Runtime) error) error {
	rt, err := app.Build(ctx, flags.params())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = rt.Close(closeCtx)
	}()
	return fn(rt)
}
