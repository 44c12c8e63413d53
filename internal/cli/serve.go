package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mobistudy/indicators-backend-go/internal/app"
)

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "Address to listen on, e.g. :8080 (overrides config)")
	serveCmd.Flags().BoolVar(&serveEvents, "events", false, "Consume trigger events (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	servePort   string
	serveEvents bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the event consumer",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if servePort != "" {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("events") {
		cfg.Events.Enabled = serveEvents
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Serve(ctx)
}
