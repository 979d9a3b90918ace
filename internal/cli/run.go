package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/lunge-worker/internal/flow"
	"github.com/wesleyorama2/lunge-worker/internal/output"
	"github.com/wesleyorama2/lunge-worker/internal/plugin"
	"github.com/wesleyorama2/lunge-worker/internal/procs"
	"github.com/wesleyorama2/lunge-worker/internal/status"
	"github.com/wesleyorama2/lunge-worker/internal/tree"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a task in this process",
	Long: `Run a task bundle in the current process and print its summary.

  lunge-worker run --task-id 42 --vus 10 --iterations 100 --path /data/task42

With --child the process is a task process started by "start": it applies
the memory ceiling and records itself in the process registry so "kill"
can find it.`,
	RunE: runTask,
}

func init() {
	addTaskFlags(runCmd)
	runCmd.Flags().Bool("child", false, "Run as a supervised task process")
	runCmd.Flags().Bool("no-color", false, "Disable colored output")
}

func runTask(cmd *cobra.Command, args []string) error {
	flags, err := readTaskFlags(cmd)
	if err != nil {
		return err
	}
	child, _ := cmd.Flags().GetBool("child")
	noColor, _ := cmd.Flags().GetBool("no-color")

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if child {
		entry := procs.Entry{PPID: os.Getppid(), PID: os.Getpid()}
		if err := w.registry.Record(ctx, flags.id, entry); err != nil {
			logger.Warn("failed to record task process", zap.Error(err))
		}
	}

	root, err := tree.LoadDocument(flags.path)
	if err != nil {
		if rerr := w.reporter.Report(ctx, flags.id, status.ValidationFailed); rerr != nil {
			logger.Warn("failed to report status", zap.Error(rerr))
		}
		return err
	}

	c := flow.New(flow.Task{
		ID:           flags.id,
		VirtualUsers: flags.vus,
		Iterations:   flags.iterations,
		Root:         root,
		FilePath:     flags.path,
	}, flow.Options{
		Worker:   plugin.Worker{ID: cfg.Worker.ID, UUID: cfg.Worker.UUID},
		Reporter: w.reporter,
		Sink:     w.sink,
		HTTP:     w.http,
		Logger:   logger,
		Async:    cfg.Log.AsyncOptions(),
	})

	// the ceiling is measured from a baseline taken with every service open
	if child {
		stopGuard, err := flow.ApplyMemoryCeiling(cfg.Limits.Memory, logger)
		if err != nil {
			logger.Warn("memory ceiling not applied", zap.Error(err))
		} else {
			defer stopGuard()
		}
	}

	res, runErr := c.Run(ctx)
	if res == nil {
		return runErr
	}
	output.NewConsole(cmd.OutOrStdout(), noColor).PrintSummary(flags.id, res)

	// a task process has already reported its own outcome
	if child || res.Status == status.Finished && runErr == nil {
		return nil
	}
	return fmt.Errorf("task %d ended with status %s", flags.id, res.Status)
}
