package kernel

// TimerMode selects whether a software timer fires once or repeats, the
// SPEC_FULL §4.9 supplement grounded on the original kernel's swtmr
// component (which shares the sortlink mechanism with task delay/timeout,
// per los_sortlink.h).
type TimerMode uint8

const (
	TimerOneShot TimerMode = iota
	TimerPeriodic
)

// TimerState tracks a timer control block's lifecycle.
type TimerState uint8

const (
	timerUnused TimerState = iota
	timerCreated
	timerTicking
)

// TimerCallback is invoked when a timer fires. It runs in tick-handler
// context (equivalent to interrupt context): it must not block.
type TimerCallback func(id TimerID, arg any)

// Timer is one software-timer control block, queued on the kernel's timer
// sortlink (a separate instance from the one task delay/timeout waits use).
type Timer struct {
	id       TimerID
	state    TimerState
	mode     TimerMode
	interval uint64
	callback TimerCallback
	arg      any
	sortNode sortLinkEntry
}

func newTimer(id TimerID) Timer {
	t := Timer{id: id, state: timerUnused}
	t.sortNode.expiry = invalidTime
	return t
}

// TimerCreate allocates a timer control block. The timer is not armed
// until TimerStart is called.
func (k *Kernel) TimerCreate(interval uint64, mode TimerMode, cb TimerCallback, arg any) (TimerID, error) {
	if interval == 0 {
		return NoTimer, ErrTimerIntervalZero
	}
	if cb == nil {
		return NoTimer, wrapErr(DomainTimer, CategoryParameter, codeTimerInvalid, "callback must not be nil", nil)
	}
	var id TimerID
	var err error
	k.criticalSection(func() {
		if len(k.freeTimers) == 0 {
			err = ErrTimerUnavailable
			return
		}
		id = k.freeTimers[len(k.freeTimers)-1]
		k.freeTimers = k.freeTimers[:len(k.freeTimers)-1]
		t := &k.timers[id]
		*t = newTimer(id)
		t.state = timerCreated
		t.mode = mode
		t.interval = interval
		t.callback = cb
		t.arg = arg
	})
	return id, err
}

func (k *Kernel) validTimerID(id TimerID) error {
	if id < 0 || int(id) >= len(k.timers) {
		return ErrTimerInvalid
	}
	return nil
}

// TimerStart (re)arms a timer to fire after its configured interval.
func (k *Kernel) TimerStart(id TimerID) error {
	if err := k.validTimerID(id); err != nil {
		return err
	}
	var err error
	k.criticalSection(func() {
		t := &k.timers[id]
		if t.state == timerUnused {
			err = ErrTimerNotCreated
			return
		}
		if t.state == timerTicking {
			k.sortlinkRemove(&k.timerSortlink, timerHandle(id))
		}
		t.state = timerTicking
		k.sortlinkInsert(&k.timerSortlink, timerHandle(id), k.port.CurrentCycles(), t.interval)
	})
	return err
}

// TimerStop disarms a timer without deleting its control block; it can be
// restarted with TimerStart.
func (k *Kernel) TimerStop(id TimerID) error {
	if err := k.validTimerID(id); err != nil {
		return err
	}
	var err error
	k.criticalSection(func() {
		t := &k.timers[id]
		if t.state == timerUnused {
			err = ErrTimerNotCreated
			return
		}
		if t.state == timerTicking {
			k.sortlinkRemove(&k.timerSortlink, timerHandle(id))
		}
		t.state = timerCreated
	})
	return err
}

// TimerDelete releases a timer control block.
func (k *Kernel) TimerDelete(id TimerID) error {
	if err := k.validTimerID(id); err != nil {
		return err
	}
	var err error
	k.criticalSection(func() {
		t := &k.timers[id]
		if t.state == timerUnused {
			err = ErrTimerNotCreated
			return
		}
		if t.state == timerTicking {
			k.sortlinkRemove(&k.timerSortlink, timerHandle(id))
		}
		*t = newTimer(id)
		k.freeTimers = append(k.freeTimers, id)
	})
	return err
}

// fireTimer runs a timer's callback and, for a periodic timer,
// re-inserts it into the sortlink for its next interval. Called from
// Tick, already within the critical section.
func (k *Kernel) fireTimer(id TimerID) {
	t := &k.timers[id]
	t.state = timerCreated
	cb, arg := t.callback, t.arg
	mode, interval := t.mode, t.interval
	if mode == TimerPeriodic {
		t.state = timerTicking
		k.sortlinkInsert(&k.timerSortlink, timerHandle(id), k.port.CurrentCycles(), interval)
	}
	if cb != nil {
		cb(id, arg)
	}
}
