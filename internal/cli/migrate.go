package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mobistudy/indicators-backend-go/internal/app"
	"github.com/mobistudy/indicators-backend-go/internal/logging"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

		db, err := app.OpenDatabase(cmd.Context(), cfg, logging.Component("Database"))
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date\n", cfg.Database.Path)
		return nil
	},
}
