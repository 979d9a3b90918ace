package cli

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/lunge-worker/internal/config"
	lhttp "github.com/wesleyorama2/lunge-worker/internal/http"
	"github.com/wesleyorama2/lunge-worker/internal/logrelay"
	"github.com/wesleyorama2/lunge-worker/internal/procs"
	"github.com/wesleyorama2/lunge-worker/internal/status"
)

// worker holds the services shared by the task commands.
type worker struct {
	http     *lhttp.Client
	sink     *logrelay.SQLiteSink
	reporter status.Reporter
	registry procs.Registry
	closers  []func() error
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openWorker connects the services named by cfg.
func openWorker(cfg *config.Config, log *zap.Logger) (*worker, error) {
	w := &worker{
		http: lhttp.NewClient(lhttp.WithTransport(cfg.HTTP.Transport())),
	}

	sink, err := logrelay.OpenSQLite(cfg.Storage.SQLite)
	if err != nil {
		return nil, err
	}
	w.sink = sink
	w.closers = append(w.closers, sink.Close)

	if url := cfg.Server.URL(); url != "" {
		w.reporter = status.NewHTTPReporter(url, cfg.Worker.UUID, w.http, log)
	} else {
		w.reporter = status.LogReporter{Logger: log}
	}

	if addr := cfg.Registry.Redis.Addr; addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Registry.Redis.Password,
			DB:       cfg.Registry.Redis.DB,
		})
		w.registry = procs.NewRedisRegistry(client)
		w.closers = append(w.closers, client.Close)
	} else {
		reg, err := procs.NewFileRegistry(cfg.Registry.Dir)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		w.registry = reg
	}
	return w, nil
}

// Close releases every service in reverse order of opening.
func (w *worker) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = append(errs, w.closers[i]())
	}
	w.http.CloseIdleConnections()
	return errors.Join(errs...)
}

type taskFlags struct {
	id         int64
	vus        int
	iterations int
	path       string
}

func addTaskFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("task-id", 0, "Task id")
	cmd.Flags().Int("vus", 1, "Number of virtual users")
	cmd.Flags().Int("iterations", 1, "Iterations per virtual user")
	cmd.Flags().String("path", "", "Unpacked task bundle directory")
}

func readTaskFlags(cmd *cobra.Command) (taskFlags, error) {
	var f taskFlags
	f.id, _ = cmd.Flags().GetInt64("task-id")
	f.vus, _ = cmd.Flags().GetInt("vus")
	f.iterations, _ = cmd.Flags().GetInt("iterations")
	f.path, _ = cmd.Flags().GetString("path")
	if f.path == "" {
		return f, fmt.Errorf("--path is required")
	}
	return f, nil
}

// args renders the flags for a child process.
func (f taskFlags) args() []string {
	return []string{
		"--task-id", fmt.Sprint(f.id),
		"--vus", fmt.Sprint(f.vus),
		"--iterations", fmt.Sprint(f.iterations),
		"--path", f.path,
	}
}
