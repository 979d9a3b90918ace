package logrelay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// writeTimeout bounds a single write to the sink.
const writeTimeout = 10 * time.Second

// lineLayout is the timestamp layout of init log lines.
const lineLayout = "2006-01-02 15:04:05.000000"

// Line is one init log document.
type Line struct {
	Log string `json:"log"`
}

// SyncRelay writes init log lines straight to the sink. Write failures are
// logged and dropped.
type SyncRelay struct {
	sink       Sink
	collection string
	workerID   int
	logger     *zap.Logger
	now        func() time.Time
}

// NewSyncRelay creates the init log relay of a task.
func NewSyncRelay(sink Sink, taskID int64, workerID int, logger *zap.Logger) *SyncRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncRelay{
		sink:       sink,
		collection: InitCollection(taskID),
		workerID:   workerID,
		logger:     logger,
		now:        time.Now,
	}
}

// Info writes an INFO line.
func (r *SyncRelay) Info(msg string) { r.line("INFO", msg) }

// Error writes an ERROR line.
func (r *SyncRelay) Error(msg string) { r.line("ERROR", msg) }

func (r *SyncRelay) line(level, msg string) {
	text := fmt.Sprintf("%s %s Worker:%d %s", r.now().Format(lineLayout), level, r.workerID, msg)
	r.Trans(Line{Log: text})
}

// Trans writes docs as they are.
func (r *SyncRelay) Trans(docs ...any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.sink.Write(ctx, r.collection, docs...); err != nil {
		r.logger.Error("failed to write log",
			zap.String("collection", r.collection),
			zap.Int("docs", len(docs)),
			zap.Error(err))
	}
}

// AsyncOptions configures an AsyncRelay.
type AsyncOptions struct {
	// Interval is the time between two flushes.
	Interval time.Duration

	// Every caps the documents sent by one scheduled flush. Zero sends
	// everything buffered.
	Every int
}

// DefaultAsyncOptions returns a one second interval with batches of 100.
func DefaultAsyncOptions() AsyncOptions {
	return AsyncOptions{Interval: time.Second, Every: 100}
}

// AsyncRelay buffers documents and flushes them to the sink on its own
// schedule. Cancel stops the schedule and flushes the rest of the buffer
// exactly once.
//
// AsyncRelay is safe for concurrent use.
type AsyncRelay struct {
	sink       Sink
	collection string
	opts       AsyncOptions
	logger     *zap.Logger

	mu        sync.Mutex
	buf       []any
	cont      bool
	timer     *time.Timer
	cancelled chan struct{}

	// serializes writes so batches reach the sink in order
	writeMu sync.Mutex
}

// NewAsyncRelay creates the run log relay of a task and starts its flush
// schedule.
func NewAsyncRelay(sink Sink, taskID int64, opts AsyncOptions, logger *zap.Logger) *AsyncRelay {
	if opts.Interval <= 0 {
		opts.Interval = DefaultAsyncOptions().Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AsyncRelay{
		sink:       sink,
		collection: RunCollection(taskID),
		opts:       opts,
		logger:     logger,
		cont:       true,
		cancelled:  make(chan struct{}),
	}
	r.timer = time.AfterFunc(opts.Interval, r.tick)
	return r
}

// Put buffers one document. Documents put after Cancel are dropped.
func (r *AsyncRelay) Put(doc any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.cont {
		r.logger.Warn("log relay closed, document dropped", zap.String("collection", r.collection))
		return
	}
	r.buf = append(r.buf, doc)
}

// Pending returns the number of buffered documents.
func (r *AsyncRelay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

func (r *AsyncRelay) tick() {
	r.writeMu.Lock()
	r.mu.Lock()
	if !r.cont {
		r.mu.Unlock()
		r.writeMu.Unlock()
		return
	}
	n := len(r.buf)
	if r.opts.Every > 0 && n > r.opts.Every {
		n = r.opts.Every
	}
	batch := r.buf[:n:n]
	r.buf = r.buf[n:]
	r.mu.Unlock()

	r.write(batch)
	r.writeMu.Unlock()

	r.mu.Lock()
	if r.cont {
		r.timer.Reset(r.opts.Interval)
	}
	r.mu.Unlock()
}

// Cancel stops the flush schedule and writes every buffered document in
// one final flush. Later calls do nothing.
func (r *AsyncRelay) Cancel() {
	r.mu.Lock()
	if !r.cont {
		r.mu.Unlock()
		return
	}
	r.cont = false
	r.timer.Stop()
	r.mu.Unlock()

	// wait for a flush that is already running
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	rest := r.buf
	r.buf = nil
	r.mu.Unlock()

	r.write(rest)
	close(r.cancelled)
}

// Done is closed once the final flush has completed.
func (r *AsyncRelay) Done() <-chan struct{} {
	return r.cancelled
}

func (r *AsyncRelay) write(docs []any) {
	if len(docs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.sink.Write(ctx, r.collection, docs...); err != nil {
		r.logger.Error("failed to write log",
			zap.String("collection", r.collection),
			zap.Int("docs", len(docs)),
			zap.Error(err))
		return
	}
	r.logger.Debug("log flushed",
		zap.String("collection", r.collection),
		zap.Int("docs", len(docs)))
}
