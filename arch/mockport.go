package arch

import (
	"sync/atomic"

	"github.com/joeycumines/nanokernel/kernel"
)

// MockPort is a [kernel.Port] with no real hardware underneath: time is a
// manually advanced counter, and context switches are goroutine handoffs
// instead of stack-pointer swaps (see goSwitcher). It exists so the
// kernel's scheduling, IPC and sortlink logic can be tested
// deterministically without a target board.
//
// Like real hardware, [kernel.Kernel.Start] never returns once any task
// exists to switch into: the goroutine that calls Start parks on a
// persistent boot pseudo-thread exactly as a task would, and nothing ever
// switches back to it. Tests that need to drive the kernel synchronously
// (call Tick, inspect state, call task/IPC entry points directly) should
// do so from a separate goroutine than the one blocked in Start, or avoid
// calling Start at all: unit tests of scheduling transitions do not
// require any task's entry function to actually run.
type MockPort struct {
	goSwitcher
	cycles      atomic.Uint64
	inInterrupt atomic.Bool
}

// NewMockPort returns a ready-to-use MockPort with its cycle counter at 0.
func NewMockPort() *MockPort {
	return &MockPort{goSwitcher: newGoSwitcher()}
}

// AdvanceCycles moves the mock clock forward, for tests driving
// [kernel.Kernel.Tick] explicitly.
func (p *MockPort) AdvanceCycles(n uint64) {
	p.cycles.Add(n)
}

func (p *MockPort) IRQDisable() kernel.IRQState { return nil }

func (p *MockPort) IRQRestore(kernel.IRQState) {}

func (p *MockPort) InInterrupt() bool { return p.inInterrupt.Load() }

// SetInInterrupt lets a test simulate being called from interrupt context,
// for exercising the entry points that reject that (spec.md §8's boundary
// case "mutex acquire in interrupt context fails").
func (p *MockPort) SetInInterrupt(v bool) { p.inInterrupt.Store(v) }

func (p *MockPort) CurrentCycles() uint64 { return p.cycles.Load() }

// NsToCycles treats one nanosecond as one cycle, the simplest mapping
// that keeps tick math exact in tests.
func (p *MockPort) NsToCycles(ns uint64) uint64 { return ns }

func (p *MockPort) TickTimerReload(period uint64) uint64 { return period }
