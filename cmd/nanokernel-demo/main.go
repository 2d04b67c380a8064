// Command nanokernel-demo runs two cooperating tasks and a periodic
// software timer on top of the host-backed architecture port; the timer
// prints scheduling metrics to stderr once a second until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/nanokernel/arch"
	"github.com/joeycumines/nanokernel/kernel"
)

func main() {
	port := arch.NewHostPort()
	k, err := kernel.New(port,
		kernel.WithMaxTasks(8),
		kernel.WithTickHz(1000),
		kernel.WithLogger(kernel.NewDefaultLogger(kernel.LevelInfo)),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nanokernel-demo: init:", err)
		os.Exit(1)
	}

	var signalEvent kernel.Event
	if err := k.EventInit(&signalEvent); err != nil {
		fmt.Fprintln(os.Stderr, "nanokernel-demo: event init:", err)
		os.Exit(1)
	}

	const producerBit uint32 = 1

	_, err = k.CreateTask(kernel.TaskParams{
		Name:     "producer",
		Priority: 5,
		Entry: func(any) {
			for {
				if err := k.Delay(k.Self(), 500); err != nil {
					return
				}
				if err := k.EventSet(&signalEvent, producerBit); err != nil {
					return
				}
			}
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "nanokernel-demo: create producer:", err)
		os.Exit(1)
	}

	_, err = k.CreateTask(kernel.TaskParams{
		Name:     "consumer",
		Priority: 6,
		Entry: func(any) {
			for {
				if _, err := k.EventWait(k.Self(), &signalEvent, producerBit, kernel.EventModeOR|kernel.EventModeClear, kernel.WaitForever); err != nil {
					return
				}
			}
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "nanokernel-demo: create consumer:", err)
		os.Exit(1)
	}

	timerID, err := k.TimerCreate(1000, kernel.TimerPeriodic, func(id kernel.TimerID, arg any) {
		snap := k.Metrics().Snapshot()
		fmt.Fprintf(os.Stderr, "tick: context_switches=%d p50_slice_ticks=%.1f\n", snap.ContextSwitches, snap.SliceP50)
	}, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nanokernel-demo: create timer:", err)
		os.Exit(1)
	}
	if err := k.TimerStart(timerID); err != nil {
		fmt.Fprintln(os.Stderr, "nanokernel-demo: start timer:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go k.Start()

	<-ctx.Done()
}
