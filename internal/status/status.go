// Package status defines the task lifecycle statuses a worker reports to
// its orchestrator and the reporters that deliver them.
package status

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Status is a task lifecycle status. The values are the codes understood by
// the orchestrator.
type Status int

const (
	Initializing     Status = 2
	ValidationFailed Status = -2
	Running          Status = 3
	RuntimeError     Status = -3
	Ready            Status = 4
	OutOfMemory      Status = -4
	Finished         Status = 10
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case ValidationFailed:
		return "validation-failed"
	case Running:
		return "running"
	case RuntimeError:
		return "runtime-error"
	case Ready:
		return "ready"
	case OutOfMemory:
		return "out-of-memory"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further status follows s.
func (s Status) Terminal() bool {
	switch s {
	case ValidationFailed, RuntimeError, OutOfMemory, Finished:
		return true
	}
	return false
}

// Reporter delivers task statuses to the orchestrator.
type Reporter interface {
	Report(ctx context.Context, taskID int64, s Status) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, taskID int64, s Status) error

func (f ReporterFunc) Report(ctx context.Context, taskID int64, s Status) error {
	return f(ctx, taskID, s)
}

// Report is one recorded status.
type Report struct {
	TaskID int64
	Status Status
}

// Recorder keeps every reported status in memory.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

func (r *Recorder) Report(ctx context.Context, taskID int64, s Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{TaskID: taskID, Status: s})
	return nil
}

// Reports returns a copy of the recorded reports in order.
func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}

// Statuses returns the statuses recorded for taskID in order.
func (r *Recorder) Statuses(taskID int64) []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Status
	for _, rep := range r.reports {
		if rep.TaskID == taskID {
			out = append(out, rep.Status)
		}
	}
	return out
}

// LogReporter writes statuses to a zap logger. It is used when no
// orchestrator is configured.
type LogReporter struct {
	Logger *zap.Logger
}

func (l LogReporter) Report(ctx context.Context, taskID int64, s Status) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("task status",
		zap.Int64("task", taskID),
		zap.Stringer("status", s),
		zap.Int("code", int(s)))
	return nil
}
