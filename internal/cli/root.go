// Package cli implements the indicators command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mobistudy/indicators-backend-go/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "indicators",
	Short: "Aggregate participant task results into daily indicators",
	Long: `indicators turns raw task results (activity summaries, sleep recordings)
into one record per participant, producer and local calendar day.

Runs are triggered over HTTP, from submission events or with the aggregate command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default: $CONFIG_PATH or ./config.yaml)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}
