package kernel

import (
	"errors"
	"testing"
)

func TestResolveOptionsAppliesDefaults(t *testing.T) {
	ro, err := resolveOptions(nil)
	if err != nil {
		t.Fatalf("resolveOptions(nil) error = %v", err)
	}
	if ro.maxTasks != defaultMaxTasks {
		t.Fatalf("maxTasks = %d, want %d", ro.maxTasks, defaultMaxTasks)
	}
	if ro.timesliceTicks != defaultTimesliceTicks {
		t.Fatalf("timesliceTicks = %d, want %d", ro.timesliceTicks, defaultTimesliceTicks)
	}
	if !ro.metricsEnabled {
		t.Fatal("metrics should be enabled by default")
	}
}

func TestResolveOptionsRejectsNonPositiveMaxTasks(t *testing.T) {
	_, err := resolveOptions([]Option{WithMaxTasks(0)})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestResolveOptionsIgnoresZeroTickHz(t *testing.T) {
	// WithTickHz(0) is a documented no-op (guards against a divide-by-zero
	// period), so the default tick period survives untouched.
	ro, err := resolveOptions([]Option{WithTickHz(0)})
	if err != nil {
		t.Fatalf("resolveOptions() error = %v", err)
	}
	if ro.tickPeriodNs == 0 {
		t.Fatal("tickPeriodNs should remain the default, not become zero")
	}
}

func TestResolveOptionsRejectsZeroTimeslice(t *testing.T) {
	_, err := resolveOptions([]Option{WithTimesliceTicks(0)})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestResolveOptionsRejectsInconsistentStackSizes(t *testing.T) {
	_, err := resolveOptions([]Option{WithMinTaskStack(4096), WithDefaultTaskStack(1024)})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestResolveOptionsIgnoresNilOption(t *testing.T) {
	if _, err := resolveOptions([]Option{nil, WithMaxMutexes(4)}); err != nil {
		t.Fatalf("resolveOptions() error = %v", err)
	}
}

func TestWithMinSliceTicksOverridesDefault(t *testing.T) {
	ro, err := resolveOptions([]Option{WithMinSliceTicks(7)})
	if err != nil {
		t.Fatalf("resolveOptions() error = %v", err)
	}
	if ro.minSliceTicks != 7 {
		t.Fatalf("minSliceTicks = %d, want 7", ro.minSliceTicks)
	}
}
