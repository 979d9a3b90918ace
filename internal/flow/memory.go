package flow

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// ExitOutOfMemory is the exit code of a task process stopped by its
// memory guard.
const ExitOutOfMemory = 86

const defaultGuardInterval = 100 * time.Millisecond

// minAddressHeadroom keeps the address space backstop clear of the
// reservations the Go runtime and sqlite make up front.
const minAddressHeadroom = 1 << 30

// MemoryGuard holds the current process under a memory ceiling.
//
// The Go heap is capped softly with debug.SetMemoryLimit and the resident
// set is sampled every Interval; the process ends once it passes Limit. The
// address space is also capped well above the baseline so a runaway
// allocation outside the Go heap still fails instead of swapping.
type MemoryGuard struct {
	Limit    uint64
	Interval time.Duration
	// Exceeded runs once when the resident set passes Limit. Nil writes an
	// out of memory line to stderr and exits with ExitOutOfMemory.
	Exceeded func(rss uint64)
	Logger   *zap.Logger
}

// Start applies the ceiling. The returned stop ends sampling and restores
// the previous limits.
func (g *MemoryGuard) Start(ctx context.Context) (stop func(), err error) {
	if g.Limit == 0 {
		return func() {}, nil
	}
	logger := g.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("memory")

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect task process: %w", err)
	}
	baseline, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read process memory: %w", err)
	}

	restoreAS, err := limitAddressSpace(baseline.VMS + addressHeadroom(g.Limit))
	if err != nil {
		return nil, err
	}
	prevSoft := debug.SetMemoryLimit(softLimit(g.Limit))

	logger.Info("memory ceiling applied",
		zap.Uint64("limit", g.Limit),
		zap.Uint64("baseline_rss", baseline.RSS),
		zap.Uint64("baseline_vms", baseline.VMS))

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.watch(ctx, proc, logger)
	}()

	return func() {
		cancel()
		<-done
		debug.SetMemoryLimit(prevSoft)
		restoreAS()
	}, nil
}

func (g *MemoryGuard) watch(ctx context.Context, proc *process.Process, logger *zap.Logger) {
	interval := g.Interval
	if interval <= 0 {
		interval = defaultGuardInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		mem, err := proc.MemoryInfoWithContext(ctx)
		if err != nil {
			continue
		}
		if mem.RSS > g.Limit {
			logger.Error("memory ceiling exceeded",
				zap.Uint64("rss", mem.RSS),
				zap.Uint64("limit", g.Limit))
			if g.Exceeded != nil {
				g.Exceeded(mem.RSS)
			} else {
				exitOutOfMemory(mem.RSS, g.Limit)
			}
			return
		}
	}
}

func exitOutOfMemory(rss, limit uint64) {
	fmt.Fprintf(os.Stderr, "fatal error: out of memory: resident set of %d bytes exceeds ceiling of %d bytes\n", rss, limit)
	os.Exit(ExitOutOfMemory)
}

// ApplyMemoryCeiling starts a MemoryGuard for limit bytes that ends the
// process when the ceiling is passed. Zero leaves the process unlimited.
func ApplyMemoryCeiling(limit uint64, logger *zap.Logger) (stop func(), err error) {
	return (&MemoryGuard{Limit: limit, Logger: logger}).Start(context.Background())
}

// softLimit leaves a quarter of the ceiling for stacks and mappings the
// Go memory limit does not account for.
func softLimit(ceiling uint64) int64 {
	soft := ceiling / 4 * 3
	if soft > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(soft)
}

func addressHeadroom(limit uint64) uint64 {
	if limit > math.MaxUint64/8 {
		return math.MaxUint64 / 2
	}
	return max(limit*8, minAddressHeadroom)
}
