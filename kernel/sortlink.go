package kernel

import "math"

// invalidTime marks a sortlink entry that is not currently linked into any
// sortlink, per spec.md §4.2's INVALID_TIME sentinel.
const invalidTime uint64 = math.MaxUint64

// sortOwnerKind distinguishes the two kinds of sortlink client described in
// spec.md §2/§4.2: tasks (delay/timed-wait) and software timers
// (SPEC_FULL §4.9). Each kind has its own ordered list (the kernel's
// taskSortlink and timerSortlink); the tag lets sortEntry find the node.
type sortOwnerKind uint8

const (
	sortOwnerNone sortOwnerKind = iota
	sortOwnerTask
	sortOwnerTimer
)

// sortHandle identifies one sortlink entry's owner without a raw pointer:
// a kind tag plus the owning Task's or Timer's index, per the index-based
// handle design note in spec.md §9.
type sortHandle struct {
	kind  sortOwnerKind
	task  TaskID
	timer TimerID
}

var noSortHandle = sortHandle{kind: sortOwnerNone, task: NoTask, timer: NoTimer}

func (h sortHandle) valid() bool { return h.kind != sortOwnerNone }

func taskHandle(id TaskID) sortHandle   { return sortHandle{kind: sortOwnerTask, task: id, timer: NoTimer} }
func timerHandle(id TimerID) sortHandle { return sortHandle{kind: sortOwnerTimer, task: NoTask, timer: id} }

// sortLinkEntry is the node embedded in every sortlink client (Task.sortNode,
// Timer.sortNode), mirroring SortLinkList in the original source.
type sortLinkEntry struct {
	prev, next sortHandle
	expiry     uint64
}

// sortlink is the ordered list of pending absolute expirations described by
// spec.md §4.2. Entries are ordered by strictly non-decreasing expiry; ties
// keep insertion order (FIFO). The kernel maintains two independent
// instances: one for task delay/timeout waits, one for software timers.
type sortlink struct {
	head, tail sortHandle
	size       int
}

func (k *Kernel) sortEntry(h sortHandle) *sortLinkEntry {
	switch h.kind {
	case sortOwnerTask:
		return &k.tasks[h.task].sortNode
	case sortOwnerTimer:
		return &k.timers[h.timer].sortNode
	default:
		k.fatal(FatalSortlinkCorruption, NoTask, "sortlink entry with no owner")
		return nil
	}
}

// insert computes response_time = startTime + ticksToCycles(waitTicks) and
// inserts h in order. Per spec.md §4.2, insertion picks between a head-scan
// (empty list, or new expiry strictly before the head) and a tail-scan
// (the common case: new deadlines tend to be later than most pending
// ones); ties insert AFTER existing entries with an equal expiry.
func (k *Kernel) sortlinkInsert(sl *sortlink, h sortHandle, startTime, waitTicks uint64) {
	e := k.sortEntry(h)
	e.expiry = startTime + k.ticksToCycles(waitTicks)
	e.prev, e.next = noSortHandle, noSortHandle

	if sl.size == 0 || e.expiry < k.sortEntry(sl.head).expiry {
		k.sortlinkInsertBefore(sl, sl.head, h)
		return
	}

	// Tail scan: walk backward until we find the last entry whose expiry is
	// <= the new one, and insert immediately after it.
	cur := sl.tail
	for {
		curEntry := k.sortEntry(cur)
		if curEntry.expiry <= e.expiry {
			k.sortlinkInsertAfter(sl, cur, h)
			return
		}
		if curEntry.prev == noSortHandle {
			k.sortlinkInsertBefore(sl, cur, h)
			return
		}
		cur = curEntry.prev
	}
}

func (k *Kernel) sortlinkInsertBefore(sl *sortlink, at sortHandle, h sortHandle) {
	e := k.sortEntry(h)
	if !at.valid() {
		// Empty list.
		e.prev, e.next = noSortHandle, noSortHandle
		sl.head, sl.tail = h, h
		sl.size++
		return
	}
	atEntry := k.sortEntry(at)
	e.prev, e.next = atEntry.prev, at
	if atEntry.prev.valid() {
		k.sortEntry(atEntry.prev).next = h
	} else {
		sl.head = h
	}
	atEntry.prev = h
	sl.size++
}

func (k *Kernel) sortlinkInsertAfter(sl *sortlink, at sortHandle, h sortHandle) {
	e := k.sortEntry(h)
	atEntry := k.sortEntry(at)
	e.prev, e.next = at, atEntry.next
	if atEntry.next.valid() {
		k.sortEntry(atEntry.next).prev = h
	} else {
		sl.tail = h
	}
	atEntry.next = h
	sl.size++
}

// remove unlinks h. If h had the earliest expiry, the scheduler's cached
// next-response time is invalidated so it is recomputed on the next
// scheduling decision, per spec.md §4.2.
func (k *Kernel) sortlinkRemove(sl *sortlink, h sortHandle) {
	e := k.sortEntry(h)
	wasHead := sl.head == h

	if e.prev.valid() {
		k.sortEntry(e.prev).next = e.next
	} else {
		sl.head = e.next
	}
	if e.next.valid() {
		k.sortEntry(e.next).prev = e.prev
	} else {
		sl.tail = e.prev
	}
	e.prev, e.next = noSortHandle, noSortHandle
	e.expiry = invalidTime
	sl.size--

	if wasHead {
		// The removed entry may be the one the scheduler last armed the
		// tick timer against (see setNextExpireTime in sched.go); reset
		// both fields so the next call recomputes and actually
		// reprograms rather than trusting a horizon that just vanished.
		k.schedRespID = noSortHandle
		k.schedRespTime = invalidTime
	}
}

// peekExpiry returns MAX-precision if empty, else max(head.expiry, now+precision).
func (k *Kernel) peekExpiry(sl *sortlink, now, precision uint64) uint64 {
	if sl.size == 0 {
		return invalidTime - precision
	}
	head := k.sortEntry(sl.head).expiry
	floor := now + precision
	if head <= floor {
		return floor
	}
	return head
}

// nextExpireTime is the minimum of the task and timer sortlinks' peekExpiry.
func (k *Kernel) nextExpireTime(now, precision uint64) uint64 {
	t := k.peekExpiry(&k.taskSortlink, now, precision)
	s := k.peekExpiry(&k.timerSortlink, now, precision)
	if t < s {
		return t
	}
	return s
}

// ticksToCycles converts a tick count into the kernel's cycle domain.
func (k *Kernel) ticksToCycles(ticks uint64) uint64 {
	return ticks * k.cyclesPerTick
}

// cyclesToTicks converts a cycle duration into whole ticks, rounding down.
func (k *Kernel) cyclesToTicks(cycles uint64) uint64 {
	if k.cyclesPerTick == 0 {
		return 0
	}
	return cycles / k.cyclesPerTick
}
