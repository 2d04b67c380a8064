package kernel

import (
	"testing"

	"github.com/joeycumines/nanokernel/arch"
)

func TestNewRejectsNilPort(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil port")
	}
}

func TestNewCreatesIdleTask(t *testing.T) {
	k := testKernel(t)
	// Exactly one slot consumed for idle; the rest remain free.
	if len(k.freeTasks) != len(k.tasks)-1 {
		t.Fatalf("freeTasks = %d, want %d", len(k.freeTasks), len(k.tasks)-1)
	}
	idleID := k.freeTasks[0]
	_ = idleID
	found := false
	for i := range k.tasks {
		if k.tasks[i].systemTask && k.tasks[i].priority == idlePriority {
			found = true
		}
	}
	if !found {
		t.Fatal("no idle task installed at idlePriority")
	}
}

func TestSelfBeforeStartIsNoTask(t *testing.T) {
	k := testKernel(t)
	if k.Self() != NoTask {
		t.Fatalf("Self() = %v, want NoTask before Start", k.Self())
	}
}

func TestMetricsDisabledReportsZeroSnapshot(t *testing.T) {
	k, err := New(arch.NewMockPort(), WithMetrics(false))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	k.Metrics().RecordSlice(5)
	k.Metrics().RecordTimesliceExhausted()
	k.Metrics().RecordPriorityInheritance()
	k.Metrics().ObserveReadyQueueDepth(3)
	snap := k.Metrics().Snapshot()
	if snap.ContextSwitches != 0 || snap.TimesliceExhausted != 0 || snap.PriorityInheritances != 0 || snap.ReadyQueueMaxDepth != 0 {
		t.Fatalf("disabled metrics recorded something: %+v", snap)
	}
}

func TestMetricsEnabledByDefaultRecordsObservations(t *testing.T) {
	k := testKernel(t)
	k.Metrics().ObserveReadyQueueDepth(7)
	if got := k.Metrics().Snapshot().ReadyQueueMaxDepth; got != 7 {
		t.Fatalf("ReadyQueueMaxDepth = %d, want 7", got)
	}
}

// TestFatalInvokesMonitorHookInsteadOfPanicking exercises spec.md §7's
// "Fatal" category: with a MonitorHook installed, a fatal condition is
// observed rather than crashing the process.
func TestFatalInvokesMonitorHookInsteadOfPanicking(t *testing.T) {
	var got FatalEvent
	hook := func(ev FatalEvent) { got = ev }
	k, err := New(arch.NewMockPort(), WithMonitorHook(hook))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	k.fatal(FatalStackOverflow, NoTask, "stack smashed")
	if got.Kind != FatalStackOverflow {
		t.Fatalf("hook observed Kind = %v, want FatalStackOverflow", got.Kind)
	}
	if got.Message != "stack smashed" {
		t.Fatalf("hook observed Message = %q", got.Message)
	}
}

func TestFatalPanicsWithoutMonitorHook(t *testing.T) {
	k := testKernel(t)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic with no MonitorHook installed")
		}
	}()
	k.fatal(FatalNegativeTimeDelta, NoTask, "time went backwards")
}
