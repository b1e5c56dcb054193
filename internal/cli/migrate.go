package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victornm/livequiz/internal/store/postgres/migrations"
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

			dsn := c.Postgres.DSN()
			if dsn == "" {
				return fmt.Errorf("postgres not configured")
			}

			return migrations.Up(cmd.Context(), dsn)
		},
	}
}
