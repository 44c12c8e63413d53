package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mobistudy/indicators-backend-go/internal/app"
	"github.com/mobistudy/indicators-backend-go/internal/models"
)

func init() {
	aggregateCmd.Flags().StringVar(&aggProducer, "producer", "", "Producer name, e.g. activity-daily")
	aggregateCmd.Flags().StringVar(&aggStudy, "study", "", "Study key")
	aggregateCmd.Flags().StringVar(&aggUser, "user", "", "Participant key")
	aggregateCmd.Flags().IntSliceVar(&aggTasks, "task", nil, "Task ID (repeatable or comma separated)")
	_ = aggregateCmd.MarkFlagRequired("producer")
	rootCmd.AddCommand(aggregateCmd)
}

var (
	aggProducer string
	aggStudy    string
	aggUser     string
	aggTasks    []int
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run one producer over a participant's unprocessed results",
	Example: `  indicators aggregate --producer activity-daily --study s1 --user u1 --task 3
  indicators aggregate --producer sleep-daily --study s1 --user u1 --task 4,5`,
	RunE: runAggregate,
}

func runAggregate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Engine.Run(ctx, aggProducer, aggStudy, aggUser, aggTasks)
	if report != nil {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	if err != nil {
		return err
	}
	if report.Status == models.RunStatusRejected {
		return fmt.Errorf("run rejected: scope already in progress")
	}
	return nil
}
