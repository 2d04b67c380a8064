package arch

import "github.com/joeycumines/nanokernel/kernel"

// goThread is one task's simulated execution context: a goroutine parked
// on resume, released exactly when the kernel schedules it in. Because
// goSwitcher hands off via an unbuffered rendezvous, at most one task
// goroutine is ever unparked at a time, matching the single-CPU model the
// kernel itself assumes.
type goThread struct {
	resume chan struct{}
	exited bool
}

// goSwitcher implements the StackInit/ContextSwitch half of [kernel.Port]
// with goroutines standing in for real stack frames, since plain Go has
// no portable way to construct or swap a raw machine stack. Both
// [MockPort] and [HostPort] embed it; they differ only in how they
// measure time and mask interrupts.
type goSwitcher struct {
	boot goThread
}

func newGoSwitcher() goSwitcher {
	return goSwitcher{boot: goThread{resume: make(chan struct{})}}
}

// StackInit spawns the goroutine that will run entry once scheduled in,
// parked immediately on its resume channel. stack is unused: every port
// built on goSwitcher runs each task on its own real goroutine stack.
func (s *goSwitcher) StackInit(stack []byte, entry kernel.TaskEntry, arg any, onExit func()) kernel.StackPointer {
	th := &goThread{resume: make(chan struct{})}
	go func() {
		<-th.resume
		if entry != nil {
			entry(arg)
		}
		th.exited = true
		onExit()
	}()
	return th
}

// ContextSwitch resumes to and, unless from has already exited, parks the
// calling goroutine on from's own resume channel until it is next
// scheduled in. A from that is not a task's stack pointer (the zero
// kernel.StackPointer passed at boot) is treated as the persistent boot
// pseudo-thread.
func (s *goSwitcher) ContextSwitch(from *kernel.StackPointer, to kernel.StackPointer) {
	toThread, ok := to.(*goThread)
	if !ok || toThread == nil {
		panic("arch: ContextSwitch to an invalid stack pointer")
	}
	toThread.resume <- struct{}{}

	fromThread := &s.boot
	if from != nil {
		if t, ok := (*from).(*goThread); ok {
			fromThread = t
		}
	}
	if fromThread.exited {
		return
	}
	<-fromThread.resume
}
