package dump

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/kinematics"
	"driftpursuit/rewind/internal/logging"
)

func sampleCapture() Capture {
	return Capture{
		SessionID: "session/alpha",
		Tick:      120,
		Time:      2,
		Preset:    "faster",
		Direction: "rewinding",
		Entities: []EntityHistory{
			{
				ID:            "pawn-1",
				Kind:          "pawn",
				Mode:          "scrubbing",
				Participating: true,
				Snapshots: []history.Snapshot{
					{Timestamp: 1.5, Transform: kinematics.At(mgl64.Vec3{1, 2, 3}), HasKinematics: true, Velocity: mgl64.Vec3{600, 0, 0}, Mode: history.MovementWalking},
					{Timestamp: 1.6, Transform: kinematics.At(mgl64.Vec3{61, 2, 3})},
				},
			},
			{ID: "drifter-1", Kind: "drifter", Mode: "recording"},
		},
		Events: []Event{
			{Tick: 100, Time: 1.66, EntityID: "pawn-1", Kind: "manipulation_started"},
		},
	}
}

func TestWriteCaptureAndLoad(t *testing.T) {
	root := t.TempDir()
	clock := func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }

	dir, err := WriteCapture(root, sampleCapture(), clock)
	if err != nil {
		t.Fatalf("write capture: %v", err)
	}
	if filepath.Base(dir) != "sessionalpha-20250301T093000.000Z" {
		t.Fatalf("unexpected bundle name %q", filepath.Base(dir))
	}

	header, err := ReadHeader(filepath.Join(dir, headerName))
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if header.Entities != 2 || header.Snapshots != 2 || header.Events != 1 || header.Preset != "faster" {
		t.Fatalf("unexpected header %+v", header)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.SessionID != "session/alpha" || loaded.Tick != 120 || loaded.Direction != "rewinding" {
		t.Fatalf("unexpected summary %+v", loaded)
	}
	if len(loaded.Entities) != 2 || len(loaded.Events) != 1 {
		t.Fatalf("unexpected contents: %d entities, %d events", len(loaded.Entities), len(loaded.Events))
	}
	first := loaded.Entities[0].Snapshots[0]
	if !first.HasKinematics || first.Mode != history.MovementWalking || first.Transform.Position != (mgl64.Vec3{1, 2, 3}) {
		t.Fatalf("snapshot did not survive the bundle: %+v", first)
	}
	if loaded.Entities[1].ID != "drifter-1" || len(loaded.Entities[1].Snapshots) != 0 {
		t.Fatalf("unexpected second entity %+v", loaded.Entities[1])
	}
}

func TestLoadRejectsMissingHeader(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without header")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestHeaderValidate(t *testing.T) {
	if err := (Header{SchemaVersion: 1}).Validate(); err == nil {
		t.Fatal("expected missing file pointer to fail")
	}
	if err := (Header{FilePointer: manifestName}).Validate(); err == nil {
		t.Fatal("expected zero schema version to fail")
	}
}

func TestWriterRejectsAppendAfterClose(t *testing.T) {
	writer, _, err := NewWriter(t.TempDir(), "s", nil)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := writer.AppendEvent(Event{Kind: "x"}); err == nil {
		t.Fatal("expected append after close to fail")
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestStoreTracksSaves(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	store, err := NewStore(filepath.Join(t.TempDir(), "dumps"), func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	first, err := store.Save(sampleCapture())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := store.Save(sampleCapture())
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct bundle directories")
	}
	stats := store.Stats()
	if stats.Dumps != 2 || stats.LastDumpURI != second || stats.LastSnapshots != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCleanerEnforcesBundleCap(t *testing.T) {
	root := t.TempDir()
	base := time.Now().Add(-time.Hour)
	var dirs []string
	for i := 0; i < 3; i++ {
		stamp := base.Add(time.Duration(i) * time.Minute)
		dir, err := WriteCapture(root, sampleCapture(), func() time.Time { return stamp })
		if err != nil {
			t.Fatalf("write capture %d: %v", i, err)
		}
		if err := os.Chtimes(filepath.Join(dir, headerName), stamp, stamp); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		dirs = append(dirs, dir)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	cleaner := NewCleaner(root, RetentionPolicy{MaxBundles: 2}, logging.NewTestLogger())
	cleaner.RunOnce()

	if _, err := os.Stat(dirs[0]); !os.IsNotExist(err) {
		t.Fatalf("expected oldest bundle removed, stat err=%v", err)
	}
	for _, dir := range dirs[1:] {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("expected %s kept: %v", dir, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "notes.txt")); err != nil {
		t.Fatalf("expected stray file untouched: %v", err)
	}
	stats := cleaner.Stats()
	if stats.Bundles != 2 || stats.Removed != 1 || stats.Bytes == 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCleanerRemovesExpiredBundles(t *testing.T) {
	root := t.TempDir()
	dir, err := WriteCapture(root, sampleCapture(), nil)
	if err != nil {
		t.Fatalf("write capture: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, headerName), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	cleaner := NewCleaner(root, RetentionPolicy{MaxAge: 24 * time.Hour}, logging.NewTestLogger())
	cleaner.RunOnce()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected expired bundle removed, stat err=%v", err)
	}
}
