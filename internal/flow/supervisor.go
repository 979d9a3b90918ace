package flow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wesleyorama2/lunge-worker/internal/logrelay"
	"github.com/wesleyorama2/lunge-worker/internal/procs"
	"github.com/wesleyorama2/lunge-worker/internal/status"
)

// stderrTail is how much of a task process's stderr is kept for exit
// classification.
const stderrTail = 8 << 10

// Supervisor runs each task in its own child process and reports how the
// child ended when it could not report for itself.
type Supervisor struct {
	// Path is the executable to run. Empty means the current executable.
	Path string
	// Env is appended to the current environment of the child.
	Env []string
	// Stdout receives the child's stdout. Nil discards it.
	Stdout io.Writer

	Reporter status.Reporter
	Registry procs.Registry
	Sink     logrelay.Sink
	WorkerID int
	Logger   *zap.Logger
}

// Start runs the child with args for taskID and blocks until it exits.
//
// A clean exit needs no report since the child reported finished itself.
// An exit with ExitOutOfMemory, or whose stderr shows an allocation
// failure, is reported as out-of-memory. A child killed by a signal is left to whoever killed it.
// Any other failure is reported as runtime-error.
func (s *Supervisor) Start(ctx context.Context, taskID int64, args ...string) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("supervisor").With(zap.Int64("task", taskID))

	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate executable: %w", err)
		}
		path = exe
	}

	tail := &tailBuffer{max: stderrTail}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Stdout = s.Stdout
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start task process: %w", err)
	}
	logger.Info("task process started", zap.Int("pid", cmd.Process.Pid))

	err := cmd.Wait()
	if s.Registry != nil {
		if rerr := s.Registry.Remove(context.WithoutCancel(ctx), taskID); rerr != nil {
			logger.Warn("failed to remove process entry", zap.Error(rerr))
		}
	}
	if err == nil {
		logger.Info("task process exited")
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("failed to wait for task process: %w", err)
	}
	if exitErr.ExitCode() == -1 {
		logger.Info("task process killed", zap.String("state", exitErr.String()))
		return nil
	}

	output := tail.String()
	if exitErr.ExitCode() == ExitOutOfMemory || outOfMemory(output) {
		logger.Error("task process ran out of memory", zap.Int("exit_code", exitErr.ExitCode()))
		s.initLog(taskID, logger).Error("task terminated: memory limit exceeded")
		s.report(ctx, taskID, status.OutOfMemory, logger)
		return fmt.Errorf("task %d ran out of memory", taskID)
	}

	logger.Error("task process failed",
		zap.Int("exit_code", exitErr.ExitCode()),
		zap.String("stderr", output))
	s.initLog(taskID, logger).Error(fmt.Sprintf("task terminated by runtime error: exit code %d", exitErr.ExitCode()))
	s.report(ctx, taskID, status.RuntimeError, logger)
	return fmt.Errorf("task %d failed: %w", taskID, err)
}

// outOfMemory reports whether stderr shows an allocation failure, from the
// memory guard, the Go runtime or the sqlite allocator.
func outOfMemory(stderr string) bool {
	for _, marker := range []string{"out of memory", "cannot allocate memory", "TODO OOM"} {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

func (s *Supervisor) initLog(taskID int64, logger *zap.Logger) *logrelay.SyncRelay {
	sink := s.Sink
	if sink == nil {
		sink = logrelay.NewMemorySink()
	}
	return logrelay.NewSyncRelay(sink, taskID, s.WorkerID, logger)
}

func (s *Supervisor) report(ctx context.Context, taskID int64, st status.Status, logger *zap.Logger) {
	if s.Reporter == nil {
		return
	}
	if err := s.Reporter.Report(context.WithoutCancel(ctx), taskID, st); err != nil {
		logger.Warn("failed to report status", zap.Stringer("status", st), zap.Error(err))
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	if len(p) > t.max {
		p = p[len(p)-t.max:]
	}
	if over := t.buf.Len() + len(p) - t.max; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
