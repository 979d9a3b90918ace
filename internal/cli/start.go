package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/lunge-worker/internal/flow"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a task in a supervised child process",
	Long: `Start a task in a child process running "run --child" and wait for it.

The child runs under the configured memory ceiling. When it dies from
exhausting memory the task is reported as out-of-memory; any other abnormal
exit is reported as a runtime error.`,
	RunE: startTask,
}

func init() {
	addTaskFlags(startCmd)
}

func startTask(cmd *cobra.Command, args []string) error {
	flags, err := readTaskFlags(cmd)
	if err != nil {
		return err
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

	childArgs := []string{"run", "--child"}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		childArgs = append(childArgs, "--config", path)
	}
	childArgs = append(childArgs, flags.args()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := &flow.Supervisor{
		Stdout:   cmd.OutOrStdout(),
		Reporter: w.reporter,
		Registry: w.registry,
		Sink:     w.sink,
		WorkerID: cfg.Worker.ID,
		Logger:   logger,
	}
	return sup.Start(ctx, flags.id, childArgs...)
}
