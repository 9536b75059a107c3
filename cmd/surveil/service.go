package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/surveil/internal/config"
	"github.com/flemzord/surveil/pkg/app"
)

// program runs the gateway under the system service manager.
type program struct {
	cfg    *config.Config
	logger service.Logger

	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	rt, err := app.Build(ctx, p.cfg, app.Options{Version: version, Serve: true})
	if err != nil {
		cancel()
		return err
	}
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		defer rt.Close()
		err := rt.Serve(ctx)
		if err != nil && p.logger != nil {
			_ = p.logger.Error(err)
		}
		p.done <- err
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func newService(path string) (service.Service, *program, error) {
	cfg, cfgPath, err := app.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	abs, err := filepath.Abs(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	prg := &program{cfg: cfg}
	s, err := service.New(prg, &service.Config{
		Name:        "surveil",
		DisplayName: "Surveil alert triage",
		Description: "Investigates trade surveillance alerts and serves the triage gateway.",
		Arguments:   []string{"service", "run", "--config", abs},
	})
	if err != nil {
		return nil, nil, err
	}
	prg.logger, err = s.Logger(nil)
	if err != nil {
		return nil, nil, err
	}
	return s, prg, nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage surveil as a system service",
	}
	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the system service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, _, err := newService(configPath(cmd))
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return err
				}
				success.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}
	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := newService(configPath(cmd))
			if err != nil {
				return err
			}
			if service.Interactive() {
				return errors.New("service run is meant for the service manager; use start instead")
			}
			return s.Run()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := newService(configPath(cmd))
			if err != nil {
				return err
			}
			st, err := s.Status()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusName(st))
			return nil
		},
	})
	return cmd
}

func statusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
