package dumpinspect

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"driftpursuit/rewind/internal/dump"
	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/kinematics"
)

func snapshotAt(timestamp float64, x float64) history.Snapshot {
	transform := kinematics.Identity()
	transform.Position = mgl64.Vec3{x, 0, 0}
	return history.Snapshot{Timestamp: timestamp, Transform: transform}
}

func TestInspectWrittenBundle(t *testing.T) {
	tmp := t.TempDir()
	clock := func() time.Time { return time.Date(2025, time.March, 1, 9, 30, 0, 0, time.UTC) }
	capture := dump.Capture{
		SessionID: "inspect",
		Tick:      90,
		Time:      1.5,
		Preset:    "normal",
		Direction: "rewind",
		Entities: []dump.EntityHistory{
			{ID: "pawn", Kind: "pawn", Mode: "scrubbing", Snapshots: []history.Snapshot{
				snapshotAt(0.5, 0), snapshotAt(1.0, 3), snapshotAt(1.5, 7),
			}},
			{ID: "drifter-1", Kind: "drifter", Mode: "recording"},
		},
		Events: []dump.Event{
			{Tick: 80, EntityID: "pawn", Kind: "manipulation_started"},
			{Tick: 80, EntityID: "drifter-1", Kind: "manipulation_started"},
		},
	}
	dir, err := dump.WriteCapture(tmp, capture, clock)
	if err != nil {
		t.Fatalf("write capture: %v", err)
	}

	loaded, summary, err := Inspect(dir)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if loaded.SnapshotCount() != 3 {
		t.Fatalf("expected 3 snapshots, got %d", loaded.SnapshotCount())
	}
	pawn := summary.Entities[0]
	if pawn.Span != 1.0 || pawn.Distance != 7 || pawn.Oldest != 0.5 {
		t.Fatalf("unexpected pawn summary %+v", pawn)
	}
	if summary.Entities[1].Snapshots != 0 || summary.Entities[1].Span != 0 {
		t.Fatalf("expected an empty drifter history, got %+v", summary.Entities[1])
	}
	if summary.Events["manipulation_started"] != 2 {
		t.Fatalf("unexpected event counts %v", summary.Events)
	}
}

func TestInspectRequiresPath(t *testing.T) {
	if _, _, err := Inspect("  "); err == nil {
		t.Fatal("expected an error for a blank path")
	}
}
