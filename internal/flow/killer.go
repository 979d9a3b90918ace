package flow

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wesleyorama2/lunge-worker/internal/procs"
	"github.com/wesleyorama2/lunge-worker/internal/status"
)

const (
	defaultKillAttempts = 30
	defaultKillInterval = 2 * time.Second
)

// Killer terminates the OS process running a task.
type Killer struct {
	Registry procs.Registry
	Reporter status.Reporter
	Logger   *zap.Logger

	// Attempts bounds the registry lookups made while the task process may
	// not have recorded itself yet. Zero means 30.
	Attempts int
	// Interval paces the lookups. Zero means 2s.
	Interval time.Duration
}

// Kill finds the process recorded for taskID, checks that its parent is
// still the recorded one so a reused pid is never hit, and kills it. It
// reports finished exactly once whatever happened and never fails.
func (k *Killer) Kill(ctx context.Context, taskID int64) {
	logger := k.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("killer").With(zap.Int64("task", taskID))

	k.terminate(ctx, taskID, logger)

	if k.Reporter != nil {
		if err := k.Reporter.Report(context.WithoutCancel(ctx), taskID, status.Finished); err != nil {
			logger.Warn("failed to report status", zap.Error(err))
		}
	}
}

func (k *Killer) terminate(ctx context.Context, taskID int64, logger *zap.Logger) {
	if k.Registry == nil {
		logger.Warn("no process registry configured")
		return
	}

	attempts := k.Attempts
	if attempts <= 0 {
		attempts = defaultKillAttempts
	}
	interval := k.Interval
	if interval <= 0 {
		interval = defaultKillInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for i := 0; i < attempts; i++ {
		if err := limiter.Wait(ctx); err != nil {
			logger.Info("kill abandoned", zap.Error(err))
			return
		}

		entry, ok, err := k.Registry.Lookup(ctx, taskID)
		if err != nil {
			logger.Warn("failed to look up task process", zap.Int("attempt", i+1), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		if killed := killProcess(ctx, entry, logger); killed {
			logger.Info("task process killed", zap.Stringer("process", entry))
		}
		if err := k.Registry.Remove(ctx, taskID); err != nil {
			logger.Warn("failed to remove process entry", zap.Error(err))
		}
		return
	}
	logger.Info("no process recorded for task", zap.Int("attempts", attempts))
}

// killProcess kills entry.PID if it is alive and still a child of
// entry.PPID.
func killProcess(ctx context.Context, entry procs.Entry, logger *zap.Logger) bool {
	p, err := process.NewProcessWithContext(ctx, int32(entry.PID))
	if err != nil {
		if !errors.Is(err, process.ErrorProcessNotRunning) {
			logger.Warn("failed to inspect task process", zap.Stringer("process", entry), zap.Error(err))
		}
		return false
	}

	ppid, err := p.PpidWithContext(ctx)
	if err != nil {
		logger.Warn("failed to read parent pid", zap.Stringer("process", entry), zap.Error(err))
		return false
	}
	if int(ppid) != entry.PPID {
		logger.Info("pid belongs to another process, not killing",
			zap.Stringer("process", entry),
			zap.Int32("actual_ppid", ppid))
		return false
	}

	if err := p.KillWithContext(ctx); err != nil {
		logger.Warn("failed to kill task process", zap.Stringer("process", entry), zap.Error(err))
		return false
	}
	return true
}
