// Package flow drives one load-testing task from validation to completion.
//
// A Controller validates the plugin tree once, builds an independent copy of
// it for every virtual user, runs each copy for the configured number of
// iterations on a fixed-size goroutine pool and reports every lifecycle
// transition to the orchestrator.
package flow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	lhttp "github.com/wesleyorama2/lunge-worker/internal/http"
	"github.com/wesleyorama2/lunge-worker/internal/logrelay"
	"github.com/wesleyorama2/lunge-worker/internal/metrics"
	"github.com/wesleyorama2/lunge-worker/internal/params"
	"github.com/wesleyorama2/lunge-worker/internal/plugin"
	"github.com/wesleyorama2/lunge-worker/internal/status"
	"github.com/wesleyorama2/lunge-worker/internal/tree"
)

// Task is an accepted task definition. It is not modified once accepted.
type Task struct {
	ID           int64
	VirtualUsers int
	Iterations   int
	Root         *plugin.Node
	// FilePath is the unpacked bundle directory holding task.json and files/.
	FilePath string
}

// Options configures a Controller. Reporter and Sink default to a zap
// backed reporter and an in-memory sink.
type Options struct {
	Worker   plugin.Worker
	Reporter status.Reporter
	Sink     logrelay.Sink
	HTTP     *lhttp.Client
	Logger   *zap.Logger
	Async    logrelay.AsyncOptions
	Metrics  *metrics.Engine
	Registry *plugin.Registry
}

// State is a Controller lifecycle state.
type State int

const (
	StateInit State = iota
	StateValidating
	StateReady
	StateRunning
	StateDone
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateValidating:
		return "validating"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a task run.
type Result struct {
	Status status.Status
	// Entries is the number of request log entries produced.
	Entries int64
	// Failures lists the node validation failures, if any.
	Failures []string
	Metrics  *metrics.Snapshot
	Requests []metrics.RequestStats
}

// Controller runs a single task. It is not reusable.
type Controller struct {
	task    Task
	opts    Options
	logger  *zap.Logger
	builder *tree.Builder

	mu    sync.Mutex
	state State
}

// New creates a controller for task.
func New(task Task, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Reporter == nil {
		opts.Reporter = status.LogReporter{Logger: opts.Logger}
	}
	if opts.Sink == nil {
		opts.Sink = logrelay.NewMemorySink()
	}
	if opts.HTTP == nil {
		opts.HTTP = lhttp.NewClient()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewEngine()
	}
	if opts.Async.Interval <= 0 || opts.Async.Every <= 0 {
		opts.Async = logrelay.DefaultAsyncOptions()
	}
	return &Controller{
		task:    task,
		opts:    opts,
		logger:  opts.Logger.Named("flow").With(zap.Int64("task", task.ID)),
		builder: tree.NewBuilder(opts.Registry),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	c.logger.Debug("state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
}

func (c *Controller) report(ctx context.Context, s status.Status) {
	if err := c.opts.Reporter.Report(ctx, c.task.ID, s); err != nil {
		c.logger.Warn("failed to report status", zap.Stringer("status", s), zap.Error(err))
	}
}

// vuser is the run state of one virtual user.
type vuser struct {
	index     int
	remaining int
	root      plugin.Plugin
}

// runLog feeds request entries to the metrics engine and the async relay.
type runLog struct {
	relay   *logrelay.AsyncRelay
	metrics *metrics.Engine
	entries atomic.Int64
}

func (r *runLog) Put(e *plugin.Entry) {
	r.entries.Add(1)
	r.metrics.RecordLatency(e.Elapsed, e.Title, e.Success, int64(e.ResponseLen))
	r.relay.Put(e)
}

// PanicError is a panic recovered from a virtual user goroutine.
type PanicError struct {
	VU    int
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("virtual user %d panicked: %v", e.VU, e.Value)
}

// Run executes the task and blocks until it ends. The returned Result is
// never nil. The error is non-nil when the task did not complete normally:
// a validation failure, a fatal plugin error, a recovered panic or ctx
// cancellation.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	if c.State() != StateInit {
		return nil, errors.New("controller already ran")
	}

	c.setState(StateValidating)
	c.report(ctx, status.Initializing)

	store := params.NewStore()
	defer func() {
		if err := store.Close(); err != nil {
			c.logger.Warn("failed to release task resources", zap.Error(err))
		}
	}()

	initLog := logrelay.NewSyncRelay(c.opts.Sink, c.task.ID, c.opts.Worker.ID, c.opts.Logger)
	relay := logrelay.NewAsyncRelay(c.opts.Sink, c.task.ID, c.opts.Async, c.opts.Logger)
	defer relay.Cancel()

	rl := &runLog{relay: relay, metrics: c.opts.Metrics}
	env := &plugin.Env{
		TaskID:       c.task.ID,
		VirtualUsers: c.task.VirtualUsers,
		FilePath:     c.task.FilePath,
		Worker:       c.opts.Worker,
		Store:        store,
		Shared:       plugin.NewShared(),
		InitLog:      initLog,
		RunLog:       rl,
		HTTP:         c.opts.HTTP,
		Logger:       c.opts.Logger,
	}

	res := &Result{}
	if failures := c.validate(env); len(failures) > 0 {
		return c.fail(ctx, res, status.ValidationFailed, failures)
	}

	users := make([]*vuser, 0, c.task.VirtualUsers)
	for vu := 1; vu <= c.task.VirtualUsers; vu++ {
		root, built := c.builder.Build(c.task.Root, env, vu)
		if !built.OK {
			return c.fail(ctx, res, status.ValidationFailed, built.Failures)
		}
		users = append(users, &vuser{index: vu, remaining: c.task.Iterations, root: root})
	}
	c.setState(StateReady)
	c.report(ctx, status.Ready)

	c.setState(StateRunning)
	c.report(ctx, status.Running)
	initLog.Info(fmt.Sprintf("task running with %d virtual users, %d iterations each",
		c.task.VirtualUsers, c.task.Iterations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(users))
	c.opts.Metrics.SetActiveVUs(len(users))
	for _, u := range users {
		g.Go(func() error {
			defer c.opts.Metrics.AddActiveVUs(-1)
			return c.runUser(gctx, u)
		})
	}
	err := g.Wait()

	res.Entries = rl.entries.Load()
	res.Metrics = c.opts.Metrics.GetSnapshot()
	res.Requests = c.opts.Metrics.GetRequestStats()

	var fatalErr *plugin.FatalError
	var panicErr *PanicError
	switch {
	case err == nil:
		for _, line := range c.opts.Metrics.Summary() {
			initLog.Info(line)
		}
		initLog.Info("task finished")
		c.setState(StateDone)
		res.Status = status.Finished
		c.report(ctx, status.Finished)
		return res, nil

	case errors.As(err, &panicErr):
		c.logger.Error("virtual user panicked",
			zap.Int("vu", panicErr.VU),
			zap.Any("panic", panicErr.Value),
			zap.ByteString("stack", panicErr.Stack))
		initLog.Error(fmt.Sprintf("task terminated by runtime error: %v", err))
		c.setState(StateFailed)
		res.Status = status.RuntimeError
		c.report(ctx, status.RuntimeError)
		return res, err

	case errors.As(err, &fatalErr):
		c.logger.Error("task terminated", zap.Error(err))
		initLog.Error(fmt.Sprintf("task terminated: %v", err))
		c.setState(StateFailed)
		res.Status = status.Finished
		c.report(ctx, status.Finished)
		return res, err

	default:
		// cancelled from outside, in-flight calls were abandoned
		c.logger.Info("task cancelled", zap.Error(err))
		initLog.Info("task cancelled")
		c.setState(StateFailed)
		res.Status = status.Finished
		c.report(context.WithoutCancel(ctx), status.Finished)
		return res, err
	}
}

// validate builds the template tree and returns every failure line.
func (c *Controller) validate(env *plugin.Env) []string {
	if c.task.Root == nil {
		return []string{"task has no plugin tree"}
	}
	if c.task.VirtualUsers < 1 {
		return []string{fmt.Sprintf("invalid virtual user count %d", c.task.VirtualUsers)}
	}
	if c.task.Iterations < 0 {
		return []string{fmt.Sprintf("invalid iteration count %d", c.task.Iterations)}
	}
	_, built := c.builder.Build(c.task.Root, env, 0)
	if built.OK {
		return nil
	}
	if len(built.Failures) == 0 {
		return []string{"plugin tree is invalid"}
	}
	return built.Failures
}

func (c *Controller) fail(ctx context.Context, res *Result, s status.Status, failures []string) (*Result, error) {
	c.setState(StateFailed)
	c.logger.Warn("task validation failed", zap.Strings("failures", failures))
	res.Status = s
	res.Failures = failures
	c.report(ctx, s)
	return res, fmt.Errorf("task %d is invalid: %d node failure(s)", c.task.ID, len(failures))
}

// runUser executes u's tree for its remaining iterations. A panic is
// returned as a *PanicError.
func (c *Controller) runUser(ctx context.Context, u *vuser) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{VU: u.index, Value: r, Stack: debug.Stack()}
		}
	}()

	for u.remaining > 0 {
		u.remaining--
		if err := plugin.Run(ctx, u.root); err != nil {
			return err
		}
	}
	return nil
}
