package kernel

// Option configures a Kernel at construction, following the functional-
// options pattern used throughout this codebase's sibling event-loop
// package: each Option mutates a resolvedOptions in place, and New applies
// them in order before validating the result.
type Option interface {
	apply(*resolvedOptions)
}

type optionFunc func(*resolvedOptions)

func (f optionFunc) apply(ro *resolvedOptions) { f(ro) }

type resolvedOptions struct {
	maxTasks        int
	maxMutexes      int
	maxTimers        int
	tickPeriodNs    uint64
	timesliceTicks  uint64
	minSliceTicks   uint64
	idleStackSize   int
	defaultStack    int
	minTaskStack    int
	heapSize        int
	logger          Logger
	metricsEnabled  bool
	monitor         MonitorHook
}

const (
	defaultMaxTasks       = 32
	defaultMaxMutexes     = 16
	defaultMaxTimers      = 16
	defaultTickHz         = 1000
	defaultTimesliceTicks = 10
	defaultMinSliceTicks  = 1
	defaultIdleStack      = 1024
	defaultTaskStack      = 2048
	defaultMinTaskStack   = 256
	defaultHeapSize       = 64 * 1024
)

func defaultOptions() resolvedOptions {
	return resolvedOptions{
		maxTasks:       defaultMaxTasks,
		maxMutexes:     defaultMaxMutexes,
		maxTimers:      defaultMaxTimers,
		tickPeriodNs:   uint64(1e9 / defaultTickHz),
		timesliceTicks: defaultTimesliceTicks,
		minSliceTicks:  defaultMinSliceTicks,
		idleStackSize:  defaultIdleStack,
		defaultStack:   defaultTaskStack,
		minTaskStack:   defaultMinTaskStack,
		heapSize:       defaultHeapSize,
		logger:         NewDefaultLogger(LevelWarn),
		metricsEnabled: true,
	}
}

// resolveOptions applies every Option to a copy of the defaults and
// validates the result, matching the resolveLoopOptions pattern this
// module's logging/metrics companions also follow.
func resolveOptions(opts []Option) (resolvedOptions, error) {
	ro := defaultOptions()
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(&ro)
	}
	if ro.maxTasks <= 0 {
		return ro, wrapErr(DomainConfig, CategoryParameter, codeConfigInvalid, "max tasks must be positive", nil)
	}
	if ro.maxMutexes < 0 {
		return ro, wrapErr(DomainConfig, CategoryParameter, codeConfigInvalid, "max mutexes must not be negative", nil)
	}
	if ro.maxTimers < 0 {
		return ro, wrapErr(DomainConfig, CategoryParameter, codeConfigInvalid, "max timers must not be negative", nil)
	}
	if ro.tickPeriodNs == 0 {
		return ro, wrapErr(DomainConfig, CategoryParameter, codeConfigInvalid, "tick period must be positive", nil)
	}
	if ro.timesliceTicks == 0 {
		return ro, wrapErr(DomainConfig, CategoryParameter, codeConfigInvalid, "time slice must be at least one tick", nil)
	}
	if ro.minTaskStack <= 0 || ro.defaultStack < ro.minTaskStack {
		return ro, wrapErr(DomainConfig, CategoryParameter, codeConfigInvalid, "stack size configuration is inconsistent", nil)
	}
	if ro.logger == nil {
		ro.logger = NoOpLogger{}
	}
	return ro, nil
}

// WithMaxTasks bounds the number of task control blocks (including the
// idle task) the kernel preallocates at construction.
func WithMaxTasks(n int) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.maxTasks = n })
}

// WithMaxMutexes bounds the number of mutex control blocks preallocated.
func WithMaxMutexes(n int) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.maxMutexes = n })
}

// WithMaxTimers bounds the number of software-timer control blocks
// preallocated (SPEC_FULL §4.9).
func WithMaxTimers(n int) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.maxTimers = n })
}

// WithTickHz sets the scheduler tick frequency in hertz. A zero hz is
// ignored, leaving the tick period unchanged.
func WithTickHz(hz uint64) Option {
	return optionFunc(func(ro *resolvedOptions) {
		if hz > 0 {
			ro.tickPeriodNs = uint64(1e9) / hz
		}
	})
}

// WithTimesliceTicks sets the round-robin time-slice length, in ticks, a
// task runs before being rotated behind peers at the same priority.
func WithTimesliceTicks(n uint64) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.timesliceTicks = n })
}

// WithMinSliceTicks sets MIN_SLICE (spec.md §4.7/§6's MIN_SLICE_US,
// expressed in ticks): a preempted task with more than this many ticks
// left in its run resumes at the head of its priority queue with the
// remainder intact; at or below it, the task is treated as exhausted and
// refilled to a full slice at the tail.
func WithMinSliceTicks(n uint64) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.minSliceTicks = n })
}

// WithIdleStackSize sets the stack, in bytes, reserved for the idle task.
func WithIdleStackSize(n int) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.idleStackSize = n })
}

// WithDefaultTaskStack sets the stack size, in bytes, used by CreateTask
// when TaskParams.StackSize is zero.
func WithDefaultTaskStack(n int) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.defaultStack = n })
}

// WithMinTaskStack sets the minimum stack size, in bytes, CreateTask will
// accept.
func WithMinTaskStack(n int) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.minTaskStack = n })
}

// WithHeapSize sets the largest stack size, in bytes, CreateTask will
// accept; each task's stack is allocated separately.
func WithHeapSize(n int) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.heapSize = n })
}

// WithLogger installs a Logger for kernel diagnostics (SPEC_FULL §10.1).
// The default is a DefaultLogger at LevelWarn.
func WithLogger(l Logger) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.logger = l })
}

// WithMetrics enables or disables the scheduling metrics collector
// (SPEC_FULL §10.2). Enabled by default.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.metricsEnabled = enabled })
}

// WithMonitorHook installs the hook invoked for unrecoverable conditions
// (spec.md §7's "Fatal" category) in place of a panic.
func WithMonitorHook(hook MonitorHook) Option {
	return optionFunc(func(ro *resolvedOptions) { ro.monitor = hook })
}
