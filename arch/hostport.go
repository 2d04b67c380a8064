package arch

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/nanokernel/kernel"
)

// HostPort is a [kernel.Port] for running the kernel on a development
// machine instead of a microcontroller: CLOCK_MONOTONIC stands in for the
// hardware cycle counter, and a real mutex stands in for interrupt
// masking. Unlike MockPort, CurrentCycles here genuinely advances with
// wall-clock time, so the idle task (see the kernel package's idleLoop)
// really sleeps until the next sortlink deadline instead of fast
// forwarding, and IRQDisable's mutex is load-bearing rather than a formality.
type HostPort struct {
	goSwitcher

	mu     sync.Mutex
	baseNs int64
}

// NewHostPort returns a ready-to-use HostPort.
func NewHostPort() *HostPort {
	return &HostPort{goSwitcher: newGoSwitcher(), baseNs: monotonicNs()}
}

func monotonicNs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}

// IRQDisable acquires HostPort's mutex, standing in for masking
// interrupts: on real hardware this would disable the tick interrupt;
// here it keeps every other goroutine (other task goroutines, including
// the idle task that calls Tick, or a test inspecting kernel state) out
// while a kernel entry point is mid-critical-section.
func (p *HostPort) IRQDisable() kernel.IRQState {
	p.mu.Lock()
	return nil
}

func (p *HostPort) IRQRestore(kernel.IRQState) {
	p.mu.Unlock()
}

func (p *HostPort) InInterrupt() bool { return false }

// CurrentCycles returns nanoseconds since HostPort was constructed, on
// the host's monotonic clock.
func (p *HostPort) CurrentCycles() uint64 {
	return uint64(monotonicNs() - p.baseNs)
}

// NsToCycles is the identity mapping: HostPort's cycle domain is
// nanoseconds.
func (p *HostPort) NsToCycles(ns uint64) uint64 { return ns }

func (p *HostPort) TickTimerReload(period uint64) uint64 { return period }
