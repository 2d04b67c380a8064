// Package kernel implements the core of a small preemptive, fixed-priority
// real-time operating system kernel for single-core, deeply-embedded
// microcontrollers.
//
// # Architecture
//
// A [Kernel] owns every piece of global mutable state a running system
// needs: the task table, the fixed-priority ready queues and their bitmap,
// the two sortlinks (task waits and software timers), the mutex and event
// control block tables, and the fixed-block memory pools created against
// it. Tasks ([Task], addressed by [TaskID]) move between ready queues, IPC
// wait-queues ([Event], [Mutex]) and the sortlink as they call blocking
// kernel entry points ([Kernel.Delay], [Kernel.EventWait],
// [Kernel.MutexAcquire], [Kernel.Join], [Kernel.Suspend]).
//
// The kernel itself never performs a context switch: that is delegated to
// an [Port] implementation supplied at construction, matching real hardware
// (interrupt masking, stack frame construction, tick timer programming) or
// a deterministic test double (see the sibling arch package's mock port).
// [Kernel.Start] never returns once a task exists to switch into, on any
// Port: the idle task takes over driving time and rescheduling from
// there. Entry points that cannot block (EventSet, TimerCreate, MemboxAlloc)
// are safe to call directly without ever starting the kernel; entry points
// that can block (EventWait, Delay, MutexAcquire, Join) require a task
// goroutine to call them from, so tests that exercise those call Start from
// a separate goroutine and observe results over a channel the task entry
// functions write to.
//
// # Concurrency model
//
// There is exactly one logical "CPU": at most one task is ever [StatusRunning] at
// a time, and every kernel entry point that mutates shared state (ready
// queues, the bitmap, the sortlinks, an IPC control block, a task's status
// bits) executes inside a single critical section bracketed by
// [Port.IRQDisable]/[Port.IRQRestore] — the kernel's only synchronization
// primitive, matching the "interrupt masking" model of spec.md. There are
// no nested critical sections.
//
// # Usage
//
//	port := arch.NewMockPort()
//	k, err := kernel.New(port, kernel.WithMaxTasks(32))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	id, err := k.CreateTask(kernel.TaskParams{
//	    Name:     "worker",
//	    Priority: 10,
//	    Entry:    func(arg any) { /* ... */ },
//	})
//	k.Start()
//
// # Error taxonomy
//
// Every API returns a [*KernelError] (or nil) rather than panicking, except
// for the fatal conditions spec.md classifies as unrecoverable (sortlink
// corruption, a stack-overflow magic-word mismatch), which are routed
// through a [MonitorHook] (installed with [WithMonitorHook]) instead of an unconditional panic so tests
// can observe them.
package kernel
