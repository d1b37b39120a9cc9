package timeline

import (
	"iter"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/kinematics"
	"driftpursuit/rewind/internal/logging"
)

type bufferSource struct {
	buffer *history.Buffer
}

func (b bufferSource) HistoryVersion() uint64 { return b.buffer.Version() }
func (b bufferSource) HistoryLen() int        { return b.buffer.Len() }
func (b bufferSource) History() iter.Seq2[int, history.Snapshot] {
	return b.buffer.All()
}

type recordingSink struct {
	shown   [][]Marker
	cleared int
}

func (r *recordingSink) Show(_ string, markers []Marker) { r.shown = append(r.shown, markers) }
func (r *recordingSink) Clear(string)                    { r.cleared++ }

func newSource(t *testing.T, times ...float64) bufferSource {
	t.Helper()
	buffer := history.NewBuffer(10, 1.0/30.0)
	for _, ts := range times {
		if err := buffer.Record(history.Snapshot{Timestamp: ts, Transform: kinematics.At(mgl64.Vec3{ts, 0, 0})}); err != nil {
			t.Fatalf("Record(%v): %v", ts, err)
		}
	}
	return bufferSource{buffer: buffer}
}

func collect(seq iter.Seq[Marker]) []Marker {
	var markers []Marker
	for marker := range seq {
		markers = append(markers, marker)
	}
	return markers
}

func TestRenderNormalisesAge(t *testing.T) {
	v := New("a", WithLogger(logging.NewTestLogger()))
	markers := collect(v.Render(newSource(t, 0, 1, 2, 4)))

	if len(markers) != 4 {
		t.Fatalf("expected one marker per snapshot, got %d", len(markers))
	}
	wantAges := []float64{1, 0.75, 0.5, 0}
	for i, marker := range markers {
		if math.Abs(marker.Age-wantAges[i]) > 1e-12 {
			t.Fatalf("marker %d: expected age %v, got %v", i, wantAges[i], marker.Age)
		}
		if marker.Transform.Position.X() != marker.Timestamp {
			t.Fatalf("marker %d carries the wrong transform", i)
		}
	}
}

func TestRenderSingleSnapshotIsNewest(t *testing.T) {
	v := New("a", WithLogger(logging.NewTestLogger()))
	markers := collect(v.Render(newSource(t, 3)))
	if len(markers) != 1 || markers[0].Age != 0 {
		t.Fatalf("expected a single zero-age marker, got %+v", markers)
	}
}

func TestRenderEmptyHistoryYieldsNothing(t *testing.T) {
	v := New("a", WithLogger(logging.NewTestLogger()))
	if markers := collect(v.Render(newSource(t))); len(markers) != 0 {
		t.Fatalf("expected no markers, got %d", len(markers))
	}
}

func TestRenderCachesUntilHistoryChanges(t *testing.T) {
	v := New("a", WithLogger(logging.NewTestLogger()))
	src := newSource(t, 0, 1)

	collect(v.Render(src))
	collect(v.Render(src))
	if v.Renders() != 1 {
		t.Fatalf("expected cached second pass, got %d renders", v.Renders())
	}

	if err := src.buffer.Record(history.Snapshot{Timestamp: 2, Transform: kinematics.Identity()}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if markers := collect(v.Render(src)); len(markers) != 3 {
		t.Fatalf("expected refreshed markers, got %d", len(markers))
	}
	if v.Renders() != 2 {
		t.Fatalf("expected recompute after history change, got %d renders", v.Renders())
	}
}

func TestRenderIsLazy(t *testing.T) {
	v := New("a", WithLogger(logging.NewTestLogger()))
	seq := v.Render(newSource(t, 0, 1))
	if v.Renders() != 0 {
		t.Fatal("expected no work before iteration")
	}
	for range seq {
		break
	}
	if v.Renders() != 1 {
		t.Fatalf("expected one render after iteration, got %d", v.Renders())
	}
}

func TestPresentShowsOncePerVersionAndClears(t *testing.T) {
	sink := &recordingSink{}
	v := New("a", WithSink(sink), WithLogger(logging.NewTestLogger()))
	src := newSource(t, 0, 1)

	v.Present(src, false)
	if sink.cleared != 0 {
		t.Fatal("hiding an unshown timeline must not clear")
	}
	v.Present(src, true)
	v.Present(src, true)
	if len(sink.shown) != 1 {
		t.Fatalf("expected one show for an unchanged history, got %d", len(sink.shown))
	}
	v.Present(src, false)
	if sink.cleared != 1 {
		t.Fatalf("expected one clear, got %d", sink.cleared)
	}
	v.Present(src, true)
	if len(sink.shown) != 2 {
		t.Fatal("expected markers to be shown again after re-enabling")
	}
}
