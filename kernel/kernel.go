package kernel

// TaskID is a dense index into the kernel's fixed task table, per spec.md
// §3. NoTask is the "null" sentinel.
type TaskID int32

// NoTask is the sentinel TaskID meaning "no task".
const NoTask TaskID = -1

// MutexID is a dense index into the kernel's fixed mutex table.
type MutexID int32

// NoMutex is the sentinel MutexID meaning "no mutex".
const NoMutex MutexID = -1

// TimerID is a dense index into the kernel's fixed software-timer table
// (SPEC_FULL §4.9).
type TimerID int32

// NoTimer is the sentinel TimerID meaning "no timer".
const NoTimer TimerID = -1

// IRQState is an opaque interrupt-mask snapshot returned by
// [Port.IRQDisable] and consumed by [Port.IRQRestore]. Only a Port
// implementation interprets its contents.
type IRQState any

// StackPointer is an opaque initial stack-pointer value returned by
// [Port.StackInit] for a newly created task, consumed only by
// [Port.ContextSwitch].
type StackPointer any

// Port is the architecture-specific substrate a Kernel runs on, matching
// spec.md §6's external-interface list. Every method is called from within
// an existing critical section unless documented otherwise; a real
// implementation does not re-enter IRQDisable.
type Port interface {
	// IRQDisable masks interrupts and returns a token that restores the
	// prior mask state when passed to IRQRestore. Calls do not nest.
	IRQDisable() IRQState
	// IRQRestore restores the interrupt mask state captured by IRQDisable.
	IRQRestore(IRQState)
	// InInterrupt reports whether the caller is currently executing in
	// interrupt context, for the context checks spec.md §7 requires of
	// blocking entry points. It is called outside any critical section.
	InInterrupt() bool

	// StackInit prepares a new task's stack region so that ContextSwitch
	// can resume it for the first time, and returns the initial stack
	// pointer. entry and arg are folded into the prepared frame; onExit is
	// invoked (by the prepared frame, not by StackInit) if entry returns.
	StackInit(stack []byte, entry TaskEntry, arg any, onExit func()) StackPointer

	// ContextSwitch saves the currently running task's machine context (if
	// any; at boot from points to a zero StackPointer) and resumes to. It returns once
	// `from` is next resumed to run, not when `to` starts running.
	ContextSwitch(from *StackPointer, to StackPointer)

	// CurrentCycles returns the free-running hardware cycle counter.
	CurrentCycles() uint64
	// NsToCycles converts a nanosecond duration into cycles at the port's
	// current clock rate.
	NsToCycles(ns uint64) uint64
	// TickTimerReload (re)programs the periodic tick interrupt to fire
	// after approximately period nanoseconds and returns the cycle count
	// actually programmed.
	TickTimerReload(period uint64) uint64
}

// TaskEntry is a task's entry point, invoked with the argument supplied at
// creation.
type TaskEntry func(arg any)

// MonitorHook observes conditions spec.md §7 classifies as unrecoverable
// (Fatal). A nil hook causes the kernel to panic instead; tests install a
// hook to observe fatal conditions without crashing the test binary.
type MonitorHook func(FatalEvent)

// Kernel holds all global mutable scheduler and IPC state. The zero value
// is not usable; construct one with [New].
type Kernel struct {
	port Port
	opts resolvedOptions

	logger  Logger
	metrics *SchedMetrics
	monitor MonitorHook

	tasks        []Task
	freeTasks    []TaskID
	recycleTasks []TaskID // self-deleted TCBs awaiting reclaim; see reclaimPendingDeletes

	readyQueues   [numPriorities]taskList
	readyBitmap   uint32
	running       TaskID
	lockCount     int
	needResched   bool

	taskSortlink  sortlink
	timerSortlink sortlink
	schedRespID   sortHandle
	schedRespTime uint64

	mutexes     []Mutex
	freeMutexes []MutexID

	timers     []Timer
	freeTimers []TimerID

	cyclesPerTick uint64
	ticks         uint64
	started       bool
}

// fatal reports an unrecoverable condition. If a MonitorHook is installed
// it is invoked and fatal returns; otherwise fatal panics. Callers that
// continue after a non-panicking fatal must treat kernel state as
// undefined and avoid further corruption, per spec.md §7.
func (k *Kernel) fatal(kind FatalKind, taskID TaskID, message string) {
	ev := FatalEvent{Kind: kind, TaskID: taskID, Message: message}
	if k.logger != nil {
		k.logger.Log(LogEntry{Level: LevelFatal, Message: message, TaskID: taskID})
	}
	if k.monitor != nil {
		k.monitor(ev)
		return
	}
	panic(ev)
}

// criticalSection runs fn with interrupts masked, matching the
// IRQDisable/IRQRestore bracketing spec.md §5 requires around every
// mutation of shared kernel state.
func (k *Kernel) criticalSection(fn func()) {
	st := k.port.IRQDisable()
	defer k.port.IRQRestore(st)
	fn()
}

// New constructs a Kernel from the supplied architecture Port and options,
// per SPEC_FULL §10.3. It allocates (once, at boot) every fixed-size table
// the kernel needs; there is no dynamic growth afterward.
func New(port Port, opts ...Option) (*Kernel, error) {
	if port == nil {
		return nil, wrapErr(DomainConfig, CategoryParameter, codeConfigInvalid, "port must not be nil", nil)
	}
	ro, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		port:    port,
		opts:    ro,
		logger:  ro.logger,
		metrics: NewSchedMetrics(ro.metricsEnabled),
		monitor: ro.monitor,
		running: NoTask,
	}

	k.tasks = make([]Task, ro.maxTasks)
	k.freeTasks = make([]TaskID, 0, ro.maxTasks)
	for i := ro.maxTasks - 1; i >= 0; i-- {
		k.tasks[i] = newTask(TaskID(i))
		k.freeTasks = append(k.freeTasks, TaskID(i))
	}

	k.mutexes = make([]Mutex, ro.maxMutexes)
	k.freeMutexes = make([]MutexID, 0, ro.maxMutexes)
	for i := ro.maxMutexes - 1; i >= 0; i-- {
		k.mutexes[i] = newMutex(MutexID(i))
		k.freeMutexes = append(k.freeMutexes, MutexID(i))
	}

	k.timers = make([]Timer, ro.maxTimers)
	k.freeTimers = make([]TimerID, 0, ro.maxTimers)
	for i := ro.maxTimers - 1; i >= 0; i-- {
		k.timers[i] = newTimer(TimerID(i))
		k.freeTimers = append(k.freeTimers, TimerID(i))
	}

	// No tick horizon is armed yet: schedRespTime starts at the sentinel
	// "infinitely far away" so the first setNextExpireTime call (from the
	// first schedule(), in Start) always reprograms the tick timer rather
	// than being short-circuited by the "don't reprogram for a later
	// deadline" check.
	k.schedRespID = noSortHandle
	k.schedRespTime = invalidTime

	if err := k.createIdleTask(); err != nil {
		return nil, err
	}

	return k, nil
}

// Self returns the currently running task's id, or NoTask if called
// before the first task has been scheduled in.
func (k *Kernel) Self() TaskID {
	var id TaskID
	k.criticalSection(func() { id = k.running })
	return id
}

// Metrics returns the kernel's scheduling metrics collector.
func (k *Kernel) Metrics() *SchedMetrics {
	return k.metrics
}

// Start programs the tick timer and context-switches into the
// highest-priority ready task (always at least the idle task). It never
// returns, on any Port, once a task exists to switch into: the idle task
// drives scheduling and time forward from here on (see the idle loop in
// sched.go). Callers that need to keep driving other goroutines (tests, a
// host process's signal handling) call Start from its own goroutine.
func (k *Kernel) Start() {
	k.criticalSection(func() {
		k.cyclesPerTick = k.port.TickTimerReload(k.opts.tickPeriodNs)
		k.started = true
		k.schedule()
	})
}
