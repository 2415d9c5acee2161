package cli

import (
	"github.com/spf13/cobra"

	"github.com/victornm/judgeboard/internal/store/postgres/migrations"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return migrations.Run(cmd.Context(), c.Postgres.DSN())
		},
	}
}
