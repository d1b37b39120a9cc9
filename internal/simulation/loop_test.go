package simulation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsAndStops(t *testing.T) {
	var ticks int32
	monitor := NewTickMonitor()
	loop := NewLoop(time.Second/120, func(time.Duration) {
		atomic.AddInt32(&ticks, 1)
	}, WithMonitor(monitor))

	loop.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	loop.Stop()

	if atomic.LoadInt32(&ticks) == 0 {
		t.Fatal("expected loop to tick at least once")
	}
	if monitor.Snapshot().Samples == 0 {
		t.Fatal("expected monitor to observe steps")
	}
	after := atomic.LoadInt32(&ticks)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&ticks) != after {
		t.Fatal("expected no ticks after Stop")
	}
}

func TestLoopStopWithoutStart(t *testing.T) {
	loop := NewLoop(0, nil)
	loop.Stop()
	if loop.StepDuration() != time.Second/60 {
		t.Fatalf("expected default step, got %v", loop.StepDuration())
	}
}

func TestTickMonitorCountsOverruns(t *testing.T) {
	monitor := NewTickMonitor()
	monitor.Observe(2*time.Millisecond, 10*time.Millisecond)
	monitor.Observe(20*time.Millisecond, 10*time.Millisecond)
	monitor.Skipped(3)

	stats := monitor.Snapshot()
	if stats.Samples != 2 || stats.Overruns != 1 || stats.Skipped != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Average != 11*time.Millisecond || stats.Max != 20*time.Millisecond {
		t.Fatalf("unexpected timing %+v", stats)
	}
	monitor.Reset()
	if monitor.Snapshot().Samples != 0 {
		t.Fatal("expected reset to clear samples")
	}
}
