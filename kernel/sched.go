package kernel

import (
	"math/bits"
	"time"
)

// enqueueReady readies id, per spec.md §4.7's enqueue policy: a task that
// still has more than MinSliceTicks remaining in its current run (a
// preemption, not an exhaustion) resumes at the HEAD of its priority
// queue with its remaining slice intact; a task whose slice is spent (or
// one being readied for the first time, with a zero slice) is refilled to
// a full slice and goes to the TAIL, behind any peers already waiting —
// the round-robin-within-priority behavior spec.md §8's seed test 5
// checks. Either way the bitmap bit for its priority is set.
func (k *Kernel) enqueueReady(id TaskID) {
	t := &k.tasks[id]
	t.status &^= (StatusSuspend | StatusDelay | StatusPend | StatusPendTime)
	t.status |= StatusReady
	if t.timeSliceTicks > k.opts.minSliceTicks {
		k.readyQueues[t.priority].pushFront(k.tasks, id)
	} else {
		t.timeSliceTicks = k.opts.timesliceTicks
		k.readyQueues[t.priority].pushBack(k.tasks, id)
	}
	k.readyBitmap |= 1 << t.priority
	k.metrics.ObserveReadyQueueDepth(k.readyQueues[t.priority].Len())
}

// dequeueReady unlinks id from its priority's ready queue, clearing the
// bitmap bit if the queue becomes empty.
func (k *Kernel) dequeueReady(id TaskID) {
	t := &k.tasks[id]
	q := &k.readyQueues[t.priority]
	q.remove(k.tasks, id)
	if q.Empty() {
		k.readyBitmap &^= 1 << t.priority
	}
	t.status &^= StatusReady
}

// topTask returns the highest-priority ready task, or NoTask if none
// (which cannot happen once the idle task exists).
func (k *Kernel) topTask() TaskID {
	if k.readyBitmap == 0 {
		return NoTask
	}
	prio := bits.TrailingZeros32(k.readyBitmap)
	return k.readyQueues[prio].Front()
}

// createIdleTask installs the always-ready, lowest-priority idle task
// every kernel needs so topTask never returns NoTask.
func (k *Kernel) createIdleTask() error {
	var err error
	k.criticalSection(func() {
		if len(k.freeTasks) == 0 {
			err = ErrTaskTCBUnavailable
			return
		}
		id := k.freeTasks[len(k.freeTasks)-1]
		k.freeTasks = k.freeTasks[:len(k.freeTasks)-1]

		t := &k.tasks[id]
		*t = newTask(id)
		t.name = "idle"
		t.priority = idlePriority
		t.systemTask = true
		t.stack = make([]byte, k.opts.idleStackSize)
		entry := func(any) { k.idleLoop() }
		t.entry = entry
		t.sp = k.port.StackInit(t.stack, entry, nil, func() {})
		t.status = StatusSuspend
		k.enqueueReady(id)
	})
	return err
}

// cycleAdvancer is implemented by ports (the mock port) that can fast
// forward their notion of time instead of actually waiting for it to pass.
type cycleAdvancer interface {
	AdvanceCycles(n uint64)
}

// idleLoop is the idle task's body. On real hardware idle just spins with
// interrupts enabled and the tick ISR preempts it; since nothing here can
// interrupt a Go goroutine from outside, idle instead cooperatively drives
// time forward itself: it hands control straight back to the scheduler the
// instant another task is ready, and otherwise advances the clock to the
// next sortlink deadline (instantly, on a port that supports it, or by
// really sleeping) before ticking.
func (k *Kernel) idleLoop() {
	adv, fastForward := k.port.(cycleAdvancer)
	for {
		var sleepFor uint64
		resumed := false
		k.criticalSection(func() {
			if k.readyBitmap&^(1<<idlePriority) != 0 {
				k.needResched = true
				k.schedule()
				resumed = true
				return
			}
			now := k.port.CurrentCycles()
			next := k.nextExpireTime(now, 0)
			switch {
			case next == invalidTime:
				sleepFor = uint64(time.Millisecond)
			case next > now:
				if fastForward {
					adv.AdvanceCycles(next - now)
				} else {
					sleepFor = next - now
				}
			}
		})
		if resumed {
			continue
		}
		if sleepFor > 0 {
			time.Sleep(time.Duration(sleepFor))
		}
		k.Tick()
	}
}

// schedule picks the highest-priority ready task and, if it differs from
// the currently running task, switches to it. Must be called from within
// a critical section.
func (k *Kernel) schedule() {
	k.reclaimPendingDeletes()

	prev := k.running
	if prev != NoTask {
		pt := &k.tasks[prev]
		if pt.status&(StatusExit|StatusSuspend|StatusPend|StatusDelay|StatusPendTime|StatusReady) == 0 {
			// Preempted, not blocked: back into its ready queue (head or
			// tail, per enqueueReady's slice rule) so it competes below.
			k.enqueueReady(prev)
		}
	}

	next := k.topTask()
	if next == NoTask {
		k.fatal(FatalSortlinkCorruption, NoTask, "no ready task, not even idle")
		return
	}
	if prev == next {
		k.dequeueReady(next)
		k.needResched = false
		k.setNextExpireTime()
		return
	}

	if prev != NoTask {
		pt := &k.tasks[prev]
		pt.status &^= StatusRunning
		elapsed := k.cyclesToTicks(k.port.CurrentCycles() - pt.startTime)
		k.metrics.RecordSlice(elapsed)
	}

	nt := &k.tasks[next]
	k.dequeueReady(next)
	nt.status |= StatusRunning
	nt.status &^= StatusReady
	nt.startTime = k.port.CurrentCycles()
	// timeSliceTicks is already correct: enqueueReady either preserved the
	// remainder of a preempted slice or refilled an exhausted one.
	k.running = next
	k.needResched = false
	k.setNextExpireTime()

	if prev != NoTask {
		prevTask := &k.tasks[prev]
		k.port.ContextSwitch(&prevTask.sp, nt.sp)
	} else {
		var noFrom StackPointer
		k.port.ContextSwitch(&noFrom, nt.sp)
	}
}

// setNextExpireTime reprograms the tick timer to fire at the earliest
// moment the scheduler actually needs to reconsider its decision: either
// the running task's own time-slice exhaustion, or the earliest pending
// sortlink deadline (a task delay/timeout, or a software timer), whichever
// comes first. This is spec.md §4.7 step 7's set_next_expire_time, ported
// from OsSchedSetNextExpireTime/OsSchedUpdateExpireTime in the original
// kernel's los_sched.c. Must be called from within a critical section,
// after k.running has been updated to the task now selected to run.
//
// It never touches k.cyclesPerTick: that is the fixed tick<->cycle
// conversion ratio established once in Start and used throughout the
// kernel's tick arithmetic, independent of this per-decision reprogramming
// of when the hardware timer next fires.
func (k *Kernel) setNextExpireTime() {
	if !k.started {
		return
	}
	now := k.port.CurrentCycles()
	precision := k.cyclesPerTick

	// The idle task has no time slice to exhaust; only a real task's
	// own slice end can compete with the sortlinks for "next wakeup".
	endTime := invalidTime
	endHandle := noSortHandle
	if k.running != NoTask && !k.tasks[k.running].systemTask {
		rt := &k.tasks[k.running]
		endTime = rt.startTime + k.ticksToCycles(rt.timeSliceTicks)
		endHandle = taskHandle(k.running)
	}

	sortExpire := k.nextExpireTime(now, precision)

	next := endTime
	nextHandle := endHandle
	if sortExpire < next {
		next = sortExpire
		nextHandle = noSortHandle
	}

	// Don't reprogram for a deadline that is no earlier than the one
	// already armed: the interrupt already scheduled will fire in time.
	if k.schedRespTime <= next {
		return
	}

	wait := uint64(0)
	if next > now {
		wait = next - now
	}
	// Both concrete Ports (arch.MockPort, arch.HostPort) document their
	// cycle domain as numerically identical to nanoseconds (see their
	// NsToCycles implementations), so the cycle-domain wait duration can
	// be passed directly as TickTimerReload's nanosecond period.
	k.port.TickTimerReload(wait)
	k.schedRespTime = next
	k.schedRespID = nextHandle
}

// reclaimPendingDeletes frees the TCBs of tasks that deleted themselves
// while running (see Delete in task.go), deferred until it is safe: a
// self-deleted task's own StackPointer is still live as schedule()'s
// "from" argument to Port.ContextSwitch on the very call that switches
// away from it, so it cannot be reclaimed until a later call, once
// k.running no longer names it. Must be called from within a critical
// section, before topTask is consulted.
func (k *Kernel) reclaimPendingDeletes() {
	if len(k.recycleTasks) == 0 {
		return
	}
	kept := k.recycleTasks[:0]
	for _, id := range k.recycleTasks {
		if id == k.running {
			kept = append(kept, id)
			continue
		}
		// A Join call on this joinable, already-StatusExit task can have
		// reclaimed it already (task.go's Join reclaims on the spot for a
		// target that already exited); guard against reclaiming twice.
		if k.tasks[id].status&StatusUnused == 0 {
			k.reclaimTask(id)
		}
	}
	k.recycleTasks = kept
}

// yieldBlocked is called by a kernel entry point, outside any critical
// section, after it has already marked the caller non-ready and set
// needResched: it forces an immediate reschedule and returns once the
// caller is next resumed to run.
func (k *Kernel) yieldBlocked(caller TaskID) {
	k.criticalSection(func() {
		if k.needResched {
			k.schedule()
		}
	})
}

// Tick advances the kernel's notion of time by one tick. The idle loop
// calls it after advancing or sleeping to the next deadline; the Ports do
// not deliver a tick interrupt of their own. It wakes every task
// and software timer whose sortlink deadline has arrived and, if the
// running task's time slice has been exhausted, requests a reschedule.
func (k *Kernel) Tick() {
	k.criticalSection(func() {
		if !k.started {
			return
		}
		k.ticks++
		now := k.port.CurrentCycles()

		for k.taskSortlink.size > 0 {
			head := k.taskSortlink.head
			if k.sortEntry(head).expiry > now {
				break
			}
			id := head.task
			k.sortlinkRemove(&k.taskSortlink, head)
			k.wakeTimedOutTask(id)
		}

		for k.timerSortlink.size > 0 {
			head := k.timerSortlink.head
			if k.sortEntry(head).expiry > now {
				break
			}
			id := head.timer
			k.sortlinkRemove(&k.timerSortlink, head)
			k.fireTimer(id)
		}

		if k.running != NoTask && k.lockCount == 0 {
			rt := &k.tasks[k.running]
			if rt.status&StatusRunning != 0 {
				if rt.timeSliceTicks > 0 {
					rt.timeSliceTicks--
				}
				if rt.timeSliceTicks == 0 && k.readyQueues[rt.priority].Len() > 0 {
					k.needResched = true
					k.metrics.RecordTimesliceExhausted()
				}
			}
		}

		k.metrics.ObserveSortlinkDepth(k.taskSortlink.size + k.timerSortlink.size)

		if k.needResched && k.lockCount == 0 {
			k.schedule()
		} else {
			k.setNextExpireTime()
		}
	})
}

// wakeTimedOutTask transitions a task whose sortlink deadline has arrived
// back to ready. For a plain Delay this is a normal wakeup; for a timed
// IPC wait (StatusPendTime) it also removes the task from the IPC
// wait-queue it was blocked on and records a timeout result so the
// blocked call returns ErrEventReadTimeout/ErrMutexTimeout.
//
// If the task is also StatusSuspend, this is the FREEZE case spec.md §9
// describes: outside a power-management mode, a task suspended while
// pending a timeout keeps its sortlink entry (see [Kernel.Suspend]) and,
// on expiry, only moves to READY once [Kernel.Resume] clears SUSPEND —
// so here it is unblocked from the wait/delay bits (and, for a timed IPC
// wait, marked timed out), but not enqueued ready or counted toward a
// reschedule.
func (k *Kernel) wakeTimedOutTask(id TaskID) {
	t := &k.tasks[id]
	frozen := t.status&StatusSuspend != 0
	switch {
	case t.status&StatusDelay != 0:
		t.status &^= StatusDelay
		if !frozen {
			k.enqueueReady(id)
		}
	case t.status&StatusPendTime != 0:
		t.status &^= (StatusPend | StatusPendTime)
		t.status |= StatusTimeout
		k.removeFromWaitQueue(id)
		if !frozen {
			k.enqueueReady(id)
		}
	}
	if !frozen {
		k.needResched = true
	}
}

// StatusTimeout, OR'd transiently into a task's status the instant it is
// woken by a timed-wait deadline, lets the IPC entry point that blocked
// it (EventWait, MutexAcquire) distinguish a timeout wakeup from a normal
// one once it resumes.
const StatusTimeout uint32 = 1 << 31

// removeFromWaitQueue is implemented by the IPC subsystem that owns the
// wait-queue a given task is linked into (event.go, mutex.go); sched.go
// only needs to trigger it on timeout.
func (k *Kernel) removeFromWaitQueue(id TaskID) {
	t := &k.tasks[id]
	if t.pendWaitQueue != nil {
		t.pendWaitQueue.remove(k.tasks, id)
		t.pendWaitQueue = nil
	}
}

// LockScheduler disables preemption: Tick still advances time and wakes
// sortlink entries, but will not switch tasks until UnlockScheduler
// brings the lock count back to zero. Calls nest.
func (k *Kernel) LockScheduler() {
	k.criticalSection(func() { k.lockCount++ })
}

// UnlockScheduler reverses one LockScheduler call, rescheduling
// immediately if the count reaches zero and a switch is pending.
func (k *Kernel) UnlockScheduler() {
	k.criticalSection(func() {
		if k.lockCount > 0 {
			k.lockCount--
		}
		if k.lockCount == 0 && k.needResched {
			k.schedule()
		}
	})
}
