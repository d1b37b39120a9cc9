package timeline

import (
	"iter"
	"slices"

	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/kinematics"
	"driftpursuit/rewind/internal/logging"
)

// Source exposes the read side of an entity's retained history.
type Source interface {
	HistoryVersion() uint64
	HistoryLen() int
	History() iter.Seq2[int, history.Snapshot]
}

// Marker describes one historical pose for presentation.
type Marker struct {
	Index     int                  `json:"index"`
	Timestamp float64              `json:"timestamp"`
	Transform kinematics.Transform `json:"transform"`
	// Age is 0 for the newest snapshot and 1 for the oldest.
	Age float64 `json:"age"`
}

// Sink receives rendered markers; Clear removes everything previously shown for id.
type Sink interface {
	Show(id string, markers []Marker)
	Clear(id string)
}

// Visualizer turns one engine's history into timeline markers.
// Visibility is decided by the caller; the visualizer only renders and presents.
type Visualizer struct {
	id   string
	sink Sink
	log  *logging.Logger

	cache   []Marker
	version uint64
	cached  bool
	renders int

	presented        bool
	presentedVersion uint64
}

// Option customises visualizer construction.
type Option func(*Visualizer)

// WithSink routes presented markers to sink.
func WithSink(sink Sink) Option {
	return func(v *Visualizer) { v.sink = sink }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(v *Visualizer) {
		if logger != nil {
			v.log = logger
		}
	}
}

// New builds a visualizer for the entity identified by id.
func New(id string, opts ...Option) *Visualizer {
	v := &Visualizer{id: id, log: logging.L()}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	v.log = v.log.With(logging.String("visualizer_id", id))
	return v
}

// ID returns the entity identifier the visualizer presents for.
func (v *Visualizer) ID() string {
	if v == nil {
		return ""
	}
	return v.id
}

// Renders counts how many times markers were recomputed from history.
func (v *Visualizer) Renders() int {
	if v == nil {
		return 0
	}
	return v.renders
}

// Render lazily yields one marker per retained snapshot, oldest first.
// Markers are recomputed only when the source history changed since the last pass.
func (v *Visualizer) Render(src Source) iter.Seq[Marker] {
	return func(yield func(Marker) bool) {
		if v == nil || src == nil {
			return
		}
		for _, marker := range v.markers(src) {
			if !yield(marker) {
				return
			}
		}
	}
}

// Present pushes markers to the sink while visible and clears them once hidden.
func (v *Visualizer) Present(src Source, visible bool) {
	if v == nil || v.sink == nil {
		return
	}
	if !visible {
		if v.presented {
			v.sink.Clear(v.id)
			v.log.Debug("timeline cleared")
		}
		v.presented = false
		return
	}
	if src == nil {
		return
	}
	version := src.HistoryVersion()
	if v.presented && v.presentedVersion == version {
		return
	}
	v.sink.Show(v.id, slices.Collect(v.Render(src)))
	v.presented = true
	v.presentedVersion = version
}

func (v *Visualizer) markers(src Source) []Marker {
	version := src.HistoryVersion()
	if v.cached && v.version == version {
		return v.cache
	}
	//1.- Copy the snapshots out once so the age normalisation knows both bounds.
	snapshots := make([]history.Snapshot, 0, src.HistoryLen())
	for _, snapshot := range src.History() {
		snapshots = append(snapshots, snapshot)
	}
	//2.- Build into a fresh slice; a previous pass may still be held by a sink.
	markers := make([]Marker, len(snapshots))
	if len(snapshots) > 0 {
		oldest := snapshots[0].Timestamp
		newest := snapshots[len(snapshots)-1].Timestamp
		span := newest - oldest
		for i, snapshot := range snapshots {
			age := 0.0
			if span > 0 {
				age = (newest - snapshot.Timestamp) / span
			}
			markers[i] = Marker{Index: i, Timestamp: snapshot.Timestamp, Transform: snapshot.Transform, Age: age}
		}
	}
	v.cache = markers
	v.version = version
	v.cached = true
	v.renders++
	return markers
}
