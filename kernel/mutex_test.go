package kernel

import (
	"testing"
	"time"

	"github.com/joeycumines/nanokernel/arch"
)

// TestMutexAcquireRejectsInterruptContext is spec.md §8's boundary case
// "mutex acquire in interrupt context fails".
func TestMutexAcquireRejectsInterruptContext(t *testing.T) {
	port := arch.NewMockPort()
	k, err := New(port)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	caller := newTestCaller(t, k)
	id, _ := k.MutexCreate()
	port.SetInInterrupt(true)
	if err := k.MutexAcquire(caller, id, 0); err != ErrMutexInInterrupt {
		t.Fatalf("err = %v, want ErrMutexInInterrupt", err)
	}
}

func TestMutexAcquireRejectsInvalidID(t *testing.T) {
	k := testKernel(t)
	caller := newTestCaller(t, k)
	if err := k.MutexAcquire(caller, MutexID(99), 0); err != ErrMutexInvalid {
		t.Fatalf("err = %v, want ErrMutexInvalid", err)
	}
}

func TestMutexAcquireUncontendedAssignsOwner(t *testing.T) {
	k := testKernel(t)
	caller := newTestCaller(t, k)
	id, err := k.MutexCreate()
	if err != nil {
		t.Fatalf("MutexCreate() error = %v", err)
	}
	if err := k.MutexAcquire(caller, id, 0); err != nil {
		t.Fatalf("MutexAcquire() error = %v", err)
	}
	if k.mutexes[id].owner != caller {
		t.Fatalf("owner = %v, want %v", k.mutexes[id].owner, caller)
	}
}

func TestMutexAcquireIsReentrant(t *testing.T) {
	k := testKernel(t)
	caller := newTestCaller(t, k)
	id, _ := k.MutexCreate()
	if err := k.MutexAcquire(caller, id, 0); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := k.MutexAcquire(caller, id, 0); err != nil {
		t.Fatalf("reentrant acquire: %v", err)
	}
	if k.mutexes[id].count != 2 {
		t.Fatalf("count = %d, want 2", k.mutexes[id].count)
	}
	if err := k.MutexRelease(caller, id); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if k.mutexes[id].owner != caller {
		t.Fatalf("owner should remain %v after one of two releases", caller)
	}
	if err := k.MutexRelease(caller, id); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if k.mutexes[id].owner != NoTask {
		t.Fatalf("owner = %v, want NoTask after final release", k.mutexes[id].owner)
	}
}

func TestMutexAcquireFailsImmediatelyWithZeroTimeout(t *testing.T) {
	k := testKernel(t)
	owner := newTestCaller(t, k)
	other := newTestCaller(t, k)
	id, _ := k.MutexCreate()
	if err := k.MutexAcquire(owner, id, 0); err != nil {
		t.Fatalf("owner acquire: %v", err)
	}
	if err := k.MutexAcquire(other, id, 0); err != ErrMutexUnavailable {
		t.Fatalf("err = %v, want ErrMutexUnavailable", err)
	}
}

func TestMutexReleaseRejectsNonOwner(t *testing.T) {
	k := testKernel(t)
	owner := newTestCaller(t, k)
	other := newTestCaller(t, k)
	id, _ := k.MutexCreate()
	_ = k.MutexAcquire(owner, id, 0)
	if err := k.MutexRelease(other, id); err != ErrMutexNotOwner {
		t.Fatalf("err = %v, want ErrMutexNotOwner", err)
	}
}

func TestMutexDeleteRejectsHeldMutex(t *testing.T) {
	k := testKernel(t)
	owner := newTestCaller(t, k)
	id, _ := k.MutexCreate()
	_ = k.MutexAcquire(owner, id, 0)
	if err := k.MutexDelete(id); err != ErrMutexUnavailable {
		t.Fatalf("err = %v, want ErrMutexUnavailable", err)
	}
}

func TestMutexDeleteOKWhenFree(t *testing.T) {
	k := testKernel(t)
	id, _ := k.MutexCreate()
	if err := k.MutexDelete(id); err != nil {
		t.Fatalf("MutexDelete() error = %v", err)
	}
}

// TestMutexContendedAcquireRestoresOwnerPriority exercises a contended
// acquire under single-hop priority inheritance: a higher-priority waiter
// blocks on a low-priority holder, acquires once the holder releases, and
// the holder ends at its original priority. The boosted priority itself is
// not sampled.
func TestMutexContendedAcquireRestoresOwnerPriority(t *testing.T) {
	port := arch.NewHostPort()
	k, err := New(port, WithMaxTasks(6), WithTickHz(2000))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	id, err := k.MutexCreate()
	if err != nil {
		t.Fatalf("MutexCreate() error = %v", err)
	}

	const lowPriority uint8 = 20
	const highPriority uint8 = 2

	holderAcquired := make(chan TaskID, 1)
	holderDone := make(chan error, 1)
	holderID, err := k.CreateTask(TaskParams{
		Name:     "holder",
		Priority: lowPriority,
		Entry: func(any) {
			self := k.Self()
			if err := k.MutexAcquire(self, id, WaitForever); err != nil {
				holderDone <- err
				return
			}
			holderAcquired <- self
			// Hold it long enough for the waiter to contend and boost us.
			_ = k.Delay(self, 20)
			holderDone <- k.MutexRelease(self, id)
		},
	})
	if err != nil {
		t.Fatalf("CreateTask(holder) error = %v", err)
	}

	waiterDone := make(chan error, 1)
	if _, err := k.CreateTask(TaskParams{
		Name:     "waiter",
		Priority: highPriority,
		Entry: func(any) {
			self := k.Self()
			_ = k.Delay(self, 5) // let holder acquire first
			waiterDone <- k.MutexAcquire(self, id, WaitForever)
		},
	}); err != nil {
		t.Fatalf("CreateTask(waiter) error = %v", err)
	}

	go k.Start()

	select {
	case <-holderAcquired:
	case <-time.After(2 * time.Second):
		t.Fatal("holder never acquired the mutex")
	}

	select {
	case werr := <-waiterDone:
		if werr != nil {
			t.Fatalf("waiter MutexAcquire() error = %v", werr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the mutex")
	}

	select {
	case herr := <-holderDone:
		if herr != nil {
			t.Fatalf("holder MutexRelease() error = %v", herr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("holder never finished")
	}

	port.IRQDisable()
	finalPriority := k.tasks[holderID].priority
	port.IRQRestore(nil)
	if finalPriority != lowPriority {
		t.Fatalf("holder priority = %d, want restored to %d", finalPriority, lowPriority)
	}
}

// TestMutexAcquireTimesOut exercises the timed-wait path on a contended
// mutex that is never released.
func TestMutexAcquireTimesOut(t *testing.T) {
	port := arch.NewHostPort()
	k, err := New(port, WithMaxTasks(4), WithTickHz(2000))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	id, _ := k.MutexCreate()

	if _, err := k.CreateTask(TaskParams{
		Name:     "holder",
		Priority: 5,
		Entry: func(any) {
			_ = k.MutexAcquire(k.Self(), id, WaitForever)
			_ = k.Delay(k.Self(), 1_000_000)
		},
	}); err != nil {
		t.Fatalf("CreateTask(holder) error = %v", err)
	}

	errs := make(chan error, 1)
	if _, err := k.CreateTask(TaskParams{
		Name:     "waiter",
		Priority: 6,
		Entry: func(any) {
			errs <- k.MutexAcquire(k.Self(), id, 5)
		},
	}); err != nil {
		t.Fatalf("CreateTask(waiter) error = %v", err)
	}

	go k.Start()

	select {
	case werr := <-errs:
		if werr != ErrMutexTimeout {
			t.Fatalf("err = %v, want ErrMutexTimeout", werr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for MutexAcquire to time out")
	}
}
