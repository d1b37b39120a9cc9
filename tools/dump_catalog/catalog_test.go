package dumpcatalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"driftpursuit/rewind/internal/dump"
)

func TestListOrdersBySessionAndTick(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2025, time.March, 1, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	for _, capture := range []dump.Capture{
		{SessionID: "beta", Tick: 5},
		{SessionID: "alpha", Tick: 40},
		{SessionID: "alpha", Tick: 12},
	} {
		if _, err := dump.WriteCapture(tmp, capture, clock); err != nil {
			t.Fatalf("write capture: %v", err)
		}
		now = now.Add(time.Second)
	}

	entries, err := List(tmp)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	got := []string{}
	for _, entry := range entries {
		got = append(got, entry.Header.SessionID)
		if filepath.Dir(entry.HeaderPath) != entry.BundlePath {
			t.Fatalf("bundle path %q does not own header %q", entry.BundlePath, entry.HeaderPath)
		}
	}
	if strings.Join(got, ",") != "alpha,alpha,beta" || entries[0].Header.Tick != 12 {
		t.Fatalf("unexpected ordering %v", got)
	}

	payload, err := MarshalEntries(entries)
	if err != nil || !strings.Contains(string(payload), `"session_id": "beta"`) {
		t.Fatalf("unexpected JSON %s, %v", payload, err)
	}
}

func TestListRejectsInvalidRoots(t *testing.T) {
	if _, err := List(""); err == nil {
		t.Fatal("expected error for empty root")
	}
	file := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := List(file); err == nil {
		t.Fatal("expected error for a file root")
	}
}
