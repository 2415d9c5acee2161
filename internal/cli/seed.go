package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victornm/judgeboard/internal/catalog"
	"github.com/victornm/judgeboard/internal/server"
)

func newSeedCmd(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load teams and question banks from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if c.Postgres.Addr == "" {
				return fmt.Errorf("seed: postgres not configured")
			}

			f, err := catalog.LoadSeedFile(file)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}

			st, pool, err := server.OpenStore(cmd.Context(), c.Postgres)
			if err != nil {
				return fmt.Errorf("seed: open store: %w", err)
			}
			defer pool.Close()

			res, err := catalog.NewService(catalog.Config{Store: st}).Seed(cmd.Context(), f)
			if err != nil {
				return err
			}

			cmd.Printf("seeded %d teams and %d questions\n", res.Teams, res.Questions)
			for _, b := range res.SkippedBanks {
				cmd.Printf("skipped bank %q, it already has questions\n", b)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "config/seed.yaml", "path to the seed file")
	return cmd
}
