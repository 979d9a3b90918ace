package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/lunge-worker/internal/flow"
)

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Kill a running task process",
	Long: `Kill the task process recorded for a task and report the task finished.

The process is only killed while its parent is still the worker that started
it, so a recycled pid is never touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetInt64("task-id")
		if id <= 0 {
			return fmt.Errorf("--task-id is required")
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		w, err := openWorker(cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("failed to close worker services", zap.Error(err))
			}
		}()

		attempts, _ := cmd.Flags().GetInt("attempts")
		k := &flow.Killer{
			Registry: w.registry,
			Reporter: w.reporter,
			Logger:   logger,
			Attempts: attempts,
		}
		k.Kill(context.Background(), id)
		return nil
	},
}

func init() {
	killCmd.Flags().Int64("task-id", 0, "Task id")
	killCmd.Flags().Int("attempts", 30, "Registry lookups before giving up")
}
