package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/pagesmith/pagesmith/pkg/app"
)

// program adapts the app loop to the OS service manager: Start must not
// block, Stop waits for the shutdown to finish.
type program struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan error
}

var _ service.Interface = (*program)(nil)

func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- app.RunContext(ctx, p.params) }()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func serviceConfig(flags *globalFlags) (*service.Config, error) {
	args := []string{"service", "run"}
	if flags.configPath != "" {
		abs, err := filepath.Abs(flags.configPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	if flags.dataDir != "" {
		abs, err := filepath.Abs(flags.dataDir)
		if err != nil {
			return nil, err
		}
		args = append(args, "--data-dir", abs)
	}
	return &service.Config{
		Name:        "pagesmith",
		DisplayName: "pagesmith",
		Description: "Tool-calling bridge between language model clients and a Notion workspace.",
		Arguments:   args,
	}, nil
}

func newService(flags *globalFlags) (service.Service, *program, error) {
	cfg, err := serviceConfig(flags)
	if err != nil {
		return nil, nil, err
	}
	prg := &program{params: flags.params()}
	svc, err := service.New(prg, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("service: %w", err)
	}
	return svc, prg, nil
}

func serviceCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control pagesmith as an OS service",
	}

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: action + " the pagesmith service",
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, _, err := newService(flags)
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the service status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := newService(flags)
			if err != nil {
				return err
			}
			status, err := svc.Status()
			if err != nil && !errors.Is(err, service.ErrNotInstalled) {
				return fmt.Errorf("service status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusText(status, err))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, _, err := newService(flags)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	})
	return cmd
}

func statusText(status service.Status, err error) string {
	if errors.Is(err, service.ErrNotInstalled) {
		return "not installed"
	}
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
