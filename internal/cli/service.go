package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/config"
)

// program adapts the server to the service manager.
type program struct {
	app    *app
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		err := p.app.run(ctx)
		if err != nil {
			p.app.log.Error("server stopped", zap.Error(err))
		}
		p.done <- err
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.cancel()
	select {
	case err := <-p.done:
		return err
	case <-time.After(p.app.cfg.HTTP.ShutdownTimeout + 5*time.Second):
		return errors.New("timed out waiting for server to stop")
	}
}

func newServiceCommand(cfgFile *string) *cobra.Command {
	actions := append([]string{"run", "status"}, service.ControlAction[:]...)
	return &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|status|run>",
		Short:     "Manage firewatch-server as a system service",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: actions,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgFile)
			if err != nil {
				return err
			}
			defer a.close()

			svc, err := service.New(&program{app: a}, serviceConfig(a.cfg.Service, *cfgFile))
			if err != nil {
				return fmt.Errorf("service: %w", err)
			}

			switch action := args[0]; action {
			case "run":
				return svc.Run()
			case "status":
				st, err := svc.Status()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), statusString(st))
				return nil
			default:
				if err := service.Control(svc, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				a.log.Info("service action done", zap.String("action", action), zap.String("name", a.cfg.Service.Name))
				return nil
			}
		},
	}
}

// serviceConfig runs the installed unit as `firewatch-server service run`.
func serviceConfig(cfg config.ServiceConfig, cfgFile string) *service.Config {
	args := []string{"service", "run"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	return &service.Config{
		Name:        cfg.Name,
		DisplayName: cfg.DisplayName,
		Description: cfg.Description,
		Arguments:   args,
		Option: service.KeyValue{
			"Restart":           "on-failure",
			"SuccessExitStatus": "0",
		},
	}
}

func statusString(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
