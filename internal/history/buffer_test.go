package history

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"driftpursuit/rewind/internal/kinematics"
)

func snapshotAt(ts float64, x float64) Snapshot {
	return Snapshot{Timestamp: ts, Transform: kinematics.At(mgl64.Vec3{x, 0, 0})}
}

func TestSampleInterpolatesBetweenSnapshots(t *testing.T) {
	buffer := NewBuffer(2.0, 1.0/30.0)
	if err := buffer.Record(snapshotAt(0, 0)); err != nil {
		t.Fatalf("record t=0: %v", err)
	}
	if err := buffer.Record(snapshotAt(1, 10)); err != nil {
		t.Fatalf("record t=1: %v", err)
	}

	sample, ok := buffer.Sample(0.5)
	if !ok {
		t.Fatal("expected a sample")
	}
	if !kinematics.Vec3Near(sample.Transform.Position, mgl64.Vec3{5, 0, 0}, 1e-9) {
		t.Fatalf("expected (5,0,0), got %v", sample.Transform.Position)
	}
	if sample.Timestamp != 0.5 {
		t.Fatalf("expected sample timestamp 0.5, got %v", sample.Timestamp)
	}
}

func TestSampleClampsOutsideRange(t *testing.T) {
	buffer := NewBuffer(5, 0.1)
	_ = buffer.Record(snapshotAt(1, 1))
	_ = buffer.Record(snapshotAt(2, 2))

	before, _ := buffer.Sample(-10)
	if before.Timestamp != 1 || before.Transform.Position.X() != 1 {
		t.Fatalf("expected oldest snapshot, got %+v", before)
	}
	after, _ := buffer.Sample(99)
	if after.Timestamp != 2 || after.Transform.Position.X() != 2 {
		t.Fatalf("expected newest snapshot, got %+v", after)
	}
}

func TestSampleReturnsExactSnapshot(t *testing.T) {
	buffer := NewBuffer(5, 0.1)
	for i := 0; i < 5; i++ {
		_ = buffer.Record(snapshotAt(float64(i), float64(i*i)))
	}
	sample, _ := buffer.Sample(3)
	if sample.Transform.Position.X() != 9 {
		t.Fatalf("expected exact snapshot at t=3, got %v", sample.Transform.Position)
	}
}

func TestEmptyBufferReportsNoData(t *testing.T) {
	buffer := NewBuffer(1, 0.1)
	if _, ok := buffer.Sample(0); ok {
		t.Fatal("empty buffer must not produce a sample")
	}
	if _, ok := buffer.OldestTime(); ok {
		t.Fatal("empty buffer must not report an oldest time")
	}
	if _, ok := buffer.NewestTime(); ok {
		t.Fatal("empty buffer must not report a newest time")
	}
	if _, ok := buffer.Clamp(3); ok {
		t.Fatal("empty buffer cannot clamp")
	}
}

func TestRecordRejectsNonIncreasingTimestamps(t *testing.T) {
	buffer := NewBuffer(5, 0.1)
	if err := buffer.Record(snapshotAt(1, 0)); err != nil {
		t.Fatalf("first record: %v", err)
	}
	version := buffer.Version()
	for _, ts := range []float64{1, 0.5, math.NaN()} {
		if err := buffer.Record(snapshotAt(ts, 0)); !errors.Is(err, ErrNonMonotonic) {
			t.Fatalf("timestamp %v: expected ErrNonMonotonic, got %v", ts, err)
		}
	}
	if buffer.Len() != 1 || buffer.Version() != version {
		t.Fatalf("rejected records must be no-ops, len=%d", buffer.Len())
	}
}

func TestRecordEvictsOutsideRetentionWindow(t *testing.T) {
	buffer := NewBuffer(1.0, 0.25)
	for i := 0; i <= 20; i++ {
		_ = buffer.Record(snapshotAt(float64(i)*0.25, float64(i)))
	}
	oldest, _ := buffer.OldestTime()
	newest, _ := buffer.NewestTime()
	if newest != 5 {
		t.Fatalf("expected newest 5, got %v", newest)
	}
	if oldest != 4 {
		t.Fatalf("expected oldest 4 after eviction, got %v", oldest)
	}
	if buffer.Len() != 5 {
		t.Fatalf("expected 5 retained snapshots, got %d", buffer.Len())
	}
	//1.- Sampling an evicted instant clamps to the oldest retained entry.
	sample, _ := buffer.Sample(1)
	if sample.Timestamp != 4 {
		t.Fatalf("expected clamp to oldest retained, got %v", sample.Timestamp)
	}
}

func TestRecordGrowsWhenCapturesOutpaceHint(t *testing.T) {
	buffer := NewBuffer(1.0, 0.5)
	for i := 0; i < 50; i++ {
		if err := buffer.Record(snapshotAt(float64(i)*0.01, float64(i))); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if buffer.Len() != 50 {
		t.Fatalf("expected all 50 snapshots retained, got %d", buffer.Len())
	}
	snapshots := buffer.Snapshots()
	for i := 1; i < len(snapshots); i++ {
		if snapshots[i].Timestamp <= snapshots[i-1].Timestamp {
			t.Fatalf("snapshots out of order at %d", i)
		}
	}
}

func TestNewBufferCapsInitialCapacity(t *testing.T) {
	cases := []struct {
		name     string
		window   float64
		interval float64
		want     int
	}{
		{name: "sized from hint", window: 1, interval: 0.25, want: 6},
		{name: "minimum", window: 0.1, interval: 5, want: 3},
		{name: "nanosecond interval", window: 10, interval: 1e-9, want: MaxInitialCapacity},
		{name: "long window", window: 3600, interval: 1.0 / 30, want: MaxInitialCapacity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NewBuffer(tc.window, tc.interval).Capacity(); got != tc.want {
				t.Fatalf("expected capacity %d, got %d", tc.want, got)
			}
		})
	}
}

func TestRecordGrowsPastInitialCapacity(t *testing.T) {
	buffer := NewBuffer(10, 1e-9)
	total := MaxInitialCapacity + 10
	for i := 0; i < total; i++ {
		if err := buffer.Record(snapshotAt(float64(i)*0.001, float64(i))); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if buffer.Len() != total {
		t.Fatalf("expected %d snapshots, got %d", total, buffer.Len())
	}
	if buffer.Capacity() != 2*MaxInitialCapacity {
		t.Fatalf("expected ring to double, got %d", buffer.Capacity())
	}
}

func TestSampleStaysWithinBracketingSnapshots(t *testing.T) {
	buffer := NewBuffer(10, 0.1)
	positions := []float64{0, 3, -2, 8, 8, 1}
	for i, x := range positions {
		_ = buffer.Record(Snapshot{
			Timestamp: float64(i) * 0.7,
			Transform: kinematics.At(mgl64.Vec3{x, 2 * x, -x}).WithHeading(x * 20),
		})
	}
	snapshots := buffer.Snapshots()
	for step := 0; step <= 100; step++ {
		ts := float64(step) / 100 * snapshots[len(snapshots)-1].Timestamp
		sample, ok := buffer.Sample(ts)
		if !ok {
			t.Fatalf("no sample at %v", ts)
		}
		//1.- Find the bracketing pair and check each axis lies between them.
		for i := 1; i < len(snapshots); i++ {
			a, b := snapshots[i-1], snapshots[i]
			if ts < a.Timestamp || ts > b.Timestamp {
				continue
			}
			for axis := 0; axis < 3; axis++ {
				lo := math.Min(a.Transform.Position[axis], b.Transform.Position[axis])
				hi := math.Max(a.Transform.Position[axis], b.Transform.Position[axis])
				got := sample.Transform.Position[axis]
				if got < lo-1e-9 || got > hi+1e-9 {
					t.Fatalf("t=%v axis %d value %v outside [%v,%v]", ts, axis, got, lo, hi)
				}
			}
			break
		}
	}
}

func TestSampleInterpolatesKinematicsWhenRecorded(t *testing.T) {
	buffer := NewBuffer(5, 0.1)
	_ = buffer.Record(Snapshot{Timestamp: 0, Transform: kinematics.Identity(), HasKinematics: true, Velocity: mgl64.Vec3{0, 0, 0}, Mode: MovementWalking})
	_ = buffer.Record(Snapshot{Timestamp: 1, Transform: kinematics.Identity(), HasKinematics: true, Velocity: mgl64.Vec3{4, 0, 0}, Mode: MovementFalling})

	early, _ := buffer.Sample(0.25)
	if !early.HasKinematics || early.Velocity.X() != 1 || early.Mode != MovementWalking {
		t.Fatalf("unexpected early sample %+v", early)
	}
	late, _ := buffer.Sample(0.75)
	if late.Velocity.X() != 3 || late.Mode != MovementFalling {
		t.Fatalf("unexpected late sample %+v", late)
	}
}

func TestResetClearsHistory(t *testing.T) {
	buffer := NewBuffer(5, 0.1)
	_ = buffer.Record(snapshotAt(1, 1))
	buffer.Reset()
	if buffer.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d", buffer.Len())
	}
	if err := buffer.Record(snapshotAt(0.5, 1)); err != nil {
		t.Fatalf("record after reset: %v", err)
	}
}
