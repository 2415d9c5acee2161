package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/victornm/judgeboard/internal/config"
	"github.com/victornm/judgeboard/internal/server"
	"github.com/victornm/judgeboard/internal/store/postgres/migrations"
)

func newStartCmd(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the judging server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			if migrate && c.Postgres.Addr != "" {
				if err := migrations.Run(cmd.Context(), c.Postgres.DSN()); err != nil {
					return err
				}
			}

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

			s, err := server.Init(c)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}

			served := make(chan error, 1)
			go func() { served <- s.Start() }()

			select {
			case sig := <-shutdown:
				slog.Info("server: received signal", "signal", sig.String())
				s.Shutdown()
				return nil
			case err := <-served:
				s.Shutdown()
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending database migrations before starting")
	return cmd
}

func loadConfig(path string) (server.Config, error) {
	c := server.DefaultConfig()
	if err := config.Load(path, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}
