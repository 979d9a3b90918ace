//go:build linux

package flow

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const rlimInfinity = ^uint64(0)

// limitAddressSpace lowers the RLIMIT_AS soft limit to ceiling, capped at the
// hard limit. A tighter existing limit is kept.
func limitAddressSpace(ceiling uint64) (restore func(), err error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_AS, &rl); err != nil {
		return nil, fmt.Errorf("failed to read address space limit: %w", err)
	}
	prev := rl

	if rl.Max != rlimInfinity && ceiling > rl.Max {
		ceiling = rl.Max
	}
	if rl.Cur != rlimInfinity && rl.Cur <= ceiling {
		return func() {}, nil
	}
	rl.Cur = ceiling
	if err := unix.Setrlimit(unix.RLIMIT_AS, &rl); err != nil {
		return nil, fmt.Errorf("failed to set address space limit: %w", err)
	}
	return func() { _ = unix.Setrlimit(unix.RLIMIT_AS, &prev) }, nil
}
