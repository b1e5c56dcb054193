package cli

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/server"
)

func newSeedCmd(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load quizzes from a YAML file into postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			dsn := c.Postgres.DSN()
			if dsn == "" {
				return fmt.Errorf("postgres not configured")
			}

			db, err := pgxpool.New(cmd.Context(), dsn)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			return server.Seed(cmd.Context(), quiz.NewPostgres(db), file)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML file of quizzes")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
