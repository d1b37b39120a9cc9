package rewind

import (
	"iter"
	"math"

	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/logging"
)

// captureEpsilon absorbs float drift when accumulated tick deltas land just short of the interval.
const captureEpsilon = 1e-9

// Mode is the engine's state machine position.
type Mode uint8

const (
	// Recording captures the live entity every capture interval.
	Recording Mode = iota
	// Scrubbing moves a cursor through history and re-poses the entity from it.
	Scrubbing
)

func (m Mode) String() string {
	if m == Scrubbing {
		return "scrubbing"
	}
	return "recording"
}

// Engine records one entity's history and plays it back on demand.
// All methods must be called from the simulation tick goroutine.
type Engine struct {
	id        string
	cfg       Config
	entity    Entity
	kinematic KinematicEntity
	buffer    *history.Buffer
	log       *logging.Logger

	mode          Mode
	participating bool
	rate          float64
	cursor        float64

	now         float64
	lastCapture float64
	captured    bool

	lastApplied history.Snapshot
	hasApplied  bool

	subscribers    []subscriber
	nextSubscriber uint64
}

// Option customises engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// WithStartTime seeds the engine's simulated clock, in seconds.
func WithStartTime(seconds float64) Option {
	return func(e *Engine) {
		if !math.IsNaN(seconds) && !math.IsInf(seconds, 0) {
			e.now = seconds
		}
	}
}

// WithParticipating sets the initial participation flag; engines participate by default.
func WithParticipating(participating bool) Option {
	return func(e *Engine) {
		e.participating = participating
	}
}

// NewEngine builds an engine for entity. Invalid configuration is clamped, never rejected.
func NewEngine(id string, entity Entity, cfg Config, opts ...Option) *Engine {
	engine := &Engine{
		id:            id,
		entity:        entity,
		log:           logging.L(),
		participating: true,
		rate:          -1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	//1.- Scope the logger after options so an injected logger also carries the engine id.
	engine.log = engine.log.With(logging.String("engine_id", id))
	engine.cfg = cfg.normalize(engine.log)
	engine.buffer = history.NewBuffer(engine.cfg.RetentionWindow, engine.cfg.CaptureInterval)
	if kinematic, ok := entity.(KinematicEntity); ok {
		engine.kinematic = kinematic
	}
	return engine
}

// ID returns the identifier supplied at construction.
func (e *Engine) ID() string { return e.id }

// Config returns the effective, clamped configuration.
func (e *Engine) Config() Config { return e.cfg }

// Entity returns the entity driven by the engine.
func (e *Engine) Entity() Entity { return e.entity }

// Mode returns the current state.
func (e *Engine) Mode() Mode { return e.mode }

// IsManipulating reports whether the engine is scrubbing history.
func (e *Engine) IsManipulating() bool { return e.mode == Scrubbing }

// IsParticipating reports whether the engine records and accepts manipulation.
func (e *Engine) IsParticipating() bool { return e.participating }

// PlaybackRate returns the signed cursor speed; negative rewinds.
func (e *Engine) PlaybackRate() float64 { return e.rate }

// Now returns the engine's simulated clock in seconds.
func (e *Engine) Now() float64 { return e.now }

// ScrubCursor returns the cursor clamped to the retained history; ok is false while Recording.
func (e *Engine) ScrubCursor() (float64, bool) {
	if e.mode != Scrubbing {
		return 0, false
	}
	if clamped, ok := e.buffer.Clamp(e.cursor); ok {
		return clamped, true
	}
	return e.cursor, true
}

// OldestTime returns the oldest retained timestamp.
func (e *Engine) OldestTime() (float64, bool) { return e.buffer.OldestTime() }

// NewestTime returns the newest retained timestamp.
func (e *Engine) NewestTime() (float64, bool) { return e.buffer.NewestTime() }

// HistoryLen returns the number of retained snapshots.
func (e *Engine) HistoryLen() int { return e.buffer.Len() }

// HistoryVersion changes whenever the retained history changes.
func (e *Engine) HistoryVersion() uint64 { return e.buffer.Version() }

// History yields copies of the retained snapshots, oldest first.
func (e *Engine) History() iter.Seq2[int, history.Snapshot] { return e.buffer.All() }

// Sample returns the interpolated historical state at t.
func (e *Engine) Sample(t float64) (history.Snapshot, bool) { return e.buffer.Sample(t) }

// BeginManipulation enters Scrubbing with the cursor on the newest snapshot.
// It reports whether a transition happened.
func (e *Engine) BeginManipulation() bool {
	if !e.participating {
		e.log.Debug("begin manipulation ignored: engine not participating")
		return false
	}
	if e.mode == Scrubbing {
		return false
	}
	//1.- Start from "now" as recorded; with no history the cursor parks on the live clock.
	cursor, ok := e.buffer.NewestTime()
	if !ok {
		cursor = e.now
	}
	e.mode = Scrubbing
	e.cursor = cursor
	e.hasApplied = false
	e.log.Debug("manipulation started", logging.Float64("cursor", cursor), logging.Float64("playback_rate", e.rate))
	e.emit(ManipulationStarted)
	return true
}

// EndManipulation returns to Recording; the live pose at exit becomes the new baseline.
func (e *Engine) EndManipulation() bool {
	if e.mode != Scrubbing {
		return false
	}
	e.mode = Recording
	e.cursor = 0
	//1.- Hand back the recorded motion so the entity resumes as it was at the cursor.
	if e.hasApplied && e.cfg.RecordVelocityAndMode && e.kinematic != nil && e.lastApplied.HasKinematics {
		e.kinematic.SetKinematics(e.lastApplied.Velocity, e.lastApplied.Mode)
	}
	e.hasApplied = false
	//2.- Capture the current pose immediately; history keeps accumulating without truncation.
	e.capture()
	e.log.Debug("manipulation completed")
	e.emit(ManipulationCompleted)
	return true
}

// SetPlaybackRate sets the signed cursor speed multiplier; zero holds the cursor.
// The rate only moves the cursor while Scrubbing.
func (e *Engine) SetPlaybackRate(rate float64) {
	if !e.participating {
		e.log.Debug("playback rate ignored: engine not participating", logging.Float64("playback_rate", rate))
		return
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return
	}
	e.rate = rate
}

// SetParticipating enables or disables recording and manipulation.
func (e *Engine) SetParticipating(participating bool) {
	if e.participating == participating {
		return
	}
	if !participating {
		//1.- Leaving while scrubbing is an implicit end so the entity keeps its current pose.
		e.EndManipulation()
		e.participating = false
		e.log.Debug("participation disabled")
		return
	}
	//2.- Re-enabled engines record from the next tick on; gaps are never backfilled.
	e.participating = true
	e.captured = false
	e.log.Debug("participation enabled")
}

// Tick advances the engine by dt simulated seconds.
func (e *Engine) Tick(dt float64) {
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return
	}
	e.now += dt
	if !e.participating || e.entity == nil {
		return
	}
	switch e.mode {
	case Recording:
		if !e.captured || e.now-e.lastCapture >= e.cfg.CaptureInterval-captureEpsilon {
			e.capture()
		}
	case Scrubbing:
		e.scrub(dt)
	}
}

func (e *Engine) scrub(dt float64) {
	//1.- Advance the cursor by the signed rate, then clamp to whatever is still retained.
	cursor := e.cursor + e.rate*dt
	clamped, ok := e.buffer.Clamp(cursor)
	if !ok {
		// No history: hold the entity where it is.
		return
	}
	e.cursor = clamped
	sample, ok := e.buffer.Sample(clamped)
	if !ok {
		return
	}
	//2.- Pose only; velocity is handed back on exit.
	e.entity.SetTransform(sample.Transform)
	e.lastApplied = sample
	e.hasApplied = true
}

func (e *Engine) capture() {
	if e.entity == nil {
		return
	}
	snapshot := history.Snapshot{Timestamp: e.now, Transform: e.entity.Transform()}
	if e.cfg.RecordVelocityAndMode && e.kinematic != nil {
		snapshot.Velocity, snapshot.Mode = e.kinematic.Kinematics()
		snapshot.HasKinematics = true
	}
	if err := e.buffer.Record(snapshot); err != nil {
		return
	}
	e.lastCapture = e.now
	e.captured = true
}
