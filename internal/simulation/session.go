package simulation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"driftpursuit/rewind/internal/camera"
	"driftpursuit/rewind/internal/coordinator"
	"driftpursuit/rewind/internal/dump"
	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/input"
	"driftpursuit/rewind/internal/kinematics"
	"driftpursuit/rewind/internal/logging"
	"driftpursuit/rewind/internal/rewind"
	"driftpursuit/rewind/internal/timeline"
	"driftpursuit/rewind/internal/world"
)

const (
	// maxPendingCommands bounds the work transports may queue between two ticks.
	maxPendingCommands = 256
	// defaultEventLog is how many manipulation events a session keeps for dumps.
	defaultEventLog = 512
)

// ErrQueueFull is returned when transports outpace the tick goroutine.
var ErrQueueFull = errors.New("session command queue full")

// SessionConfig collects the tunables a session needs at construction.
type SessionConfig struct {
	Engine     rewind.Config
	Speeds     coordinator.SpeedTable
	Preset     coordinator.SpeedPreset
	Camera     camera.Config
	DemoBodies int
	Seed       int64
	EventLog   int
}

// DefaultSessionConfig mirrors the configuration defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Engine:     rewind.DefaultConfig(),
		Speeds:     coordinator.DefaultSpeedTable(),
		Preset:     coordinator.Normal,
		Camera:     camera.DefaultConfig(),
		DemoBodies: 8,
		Seed:       1,
		EventLog:   defaultEventLog,
	}
}

// EngineStatus describes one bound engine after a tick.
type EngineStatus struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	Mode            string  `json:"mode"`
	Participating   bool    `json:"participating"`
	PlaybackRate    float64 `json:"playback_rate"`
	Cursor          float64 `json:"cursor,omitempty"`
	HasCursor       bool    `json:"has_cursor"`
	Oldest          float64 `json:"oldest"`
	Newest          float64 `json:"newest"`
	Snapshots       int     `json:"snapshots"`
	AnimationPaused bool    `json:"animation_paused"`
}

// Status is the immutable view published after every tick.
type Status struct {
	SessionID       string         `json:"session_id"`
	Tick            uint64         `json:"tick"`
	Time            float64        `json:"time"`
	Preset          string         `json:"preset"`
	Direction       string         `json:"direction"`
	ScrubActive     bool           `json:"scrub_active"`
	TimelineVisible bool           `json:"timeline_visible"`
	PlayerID        string         `json:"player_id,omitempty"`
	Camera          *camera.View   `json:"camera,omitempty"`
	Engines         []EngineStatus `json:"engines"`
	Events          uint64         `json:"manipulation_events"`
	Ticks           TickStats      `json:"ticks"`
}

// CountByMode tallies engines per mode for metrics.
func (s Status) CountByMode() map[string]int {
	counts := make(map[string]int, 2)
	for _, engine := range s.Engines {
		counts[engine.Mode]++
	}
	return counts
}

// SnapshotTotal sums retained snapshots across every engine.
func (s Status) SnapshotTotal() int {
	total := 0
	for _, engine := range s.Engines {
		total += engine.Snapshots
	}
	return total
}

// binding ties a world body to its engine, visualizer and coordinator slot.
type binding struct {
	body        *world.Body
	engine      *rewind.Engine
	visualizer  *timeline.Visualizer
	handle      coordinator.Handle
	unsubscribe []func()
}

// Session owns the world and the coordinator; every mutation happens on the tick goroutine.
type Session struct {
	id      string
	cfg     SessionConfig
	log     *logging.Logger
	monitor *TickMonitor
	sink    timeline.Sink

	worldOpts []world.Option
	world     *world.World
	coord     *coordinator.Coordinator
	router    *input.Router
	rig       *camera.Rig

	bindings []*binding
	byID     map[string]*binding
	player   *binding

	tick       uint64
	now        float64
	events     []dump.Event
	eventCount atomic.Uint64

	mu      sync.Mutex
	pending []func()

	status atomic.Pointer[Status]
}

// SessionOption customises session construction.
type SessionOption func(*Session)

// WithSessionLogger attaches a structured logger.
func WithSessionLogger(logger *logging.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithTimelineSink routes visualizer output to sink.
func WithTimelineSink(sink timeline.Sink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

// WithSessionMonitor exposes loop timings through Status.
func WithSessionMonitor(monitor *TickMonitor) SessionOption {
	return func(s *Session) { s.monitor = monitor }
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithWorldOptions forwards options to the world constructor.
func WithWorldOptions(opts ...world.Option) SessionOption {
	return func(s *Session) {
		s.worldOpts = append(s.worldOpts, opts...)
	}
}

// NewSession builds the world, coordinator and player controls. Bodies bind on the first Step.
func NewSession(cfg SessionConfig, opts ...SessionOption) *Session {
	if cfg.EventLog <= 0 {
		cfg.EventLog = defaultEventLog
	}
	s := &Session{
		id:   uuid.NewString(),
		cfg:  cfg,
		log:  logging.L(),
		byID: make(map[string]*binding),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.log = s.log.Named("session").With(logging.String("session_id", s.id))
	s.world = world.New(append([]world.Option{world.WithSeed(cfg.Seed), world.WithLogger(s.log)}, s.worldOpts...)...)
	s.coord = coordinator.New(
		coordinator.WithLogger(s.log),
		coordinator.WithSpeedTable(cfg.Speeds),
		coordinator.WithPreset(cfg.Preset),
	)
	s.router = input.NewRouter(s.coord, s.log)
	s.rig = camera.NewRig(cfg.Camera, s.log)

	//1.- Queue the player and demo bodies so they bind through the normal spawn path.
	s.world.SpawnPawn(kinematics.Identity())
	s.world.Populate(cfg.DemoBodies)
	s.publish()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Status returns the most recently published status.
func (s *Session) Status() Status {
	status := *s.status.Load()
	status.Ticks = s.monitor.Snapshot()
	return status
}

// ManipulationEvents counts every start and completion observed so far.
func (s *Session) ManipulationEvents() uint64 { return s.eventCount.Load() }

// Enqueue validates cmd and schedules it for the start of the next tick.
func (s *Session) Enqueue(cmd input.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	return s.push(func() {
		changed, err := s.router.Apply(cmd)
		if err != nil {
			s.log.Warn("command rejected", logging.String("action", string(cmd.Action)), logging.Error(err))
			return
		}
		s.log.Debug("command applied", logging.String("action", string(cmd.Action)), logging.Bool("changed", changed))
	})
}

// Exec runs fn on the tick goroutine and waits for it or for ctx.
func (s *Session) Exec(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := s.push(func() {
		fn()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SpawnDrifter adds an autonomous body and returns its identifier.
func (s *Session) SpawnDrifter(ctx context.Context) (string, error) {
	var id string
	err := s.Exec(ctx, func() { id = s.world.SpawnDrifter().ID() })
	return id, err
}

// Despawn removes the body identified by id; it reports false for unknown bodies.
func (s *Session) Despawn(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.Exec(ctx, func() { ok = s.world.Despawn(id) })
	return ok, err
}

// ExportHistory captures every engine's retained history on the tick goroutine.
func (s *Session) ExportHistory(ctx context.Context) (dump.Capture, error) {
	var capture dump.Capture
	err := s.Exec(ctx, func() { capture = s.capture() })
	return capture, err
}

func (s *Session) push(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= maxPendingCommands {
		return ErrQueueFull
	}
	s.pending = append(s.pending, fn)
	return nil
}

// Step advances the session by one fixed timestep; it is the loop's StepFunc.
func (s *Session) Step(step time.Duration) {
	dt := step.Seconds()

	//1.- Commands land before any cursor moves.
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range pending {
		fn()
	}

	//2.- Integrate the world, then bind and unbind whatever changed lifetime.
	diff := s.world.Advance(dt)
	for _, body := range diff.Spawned {
		s.bind(body)
	}
	for _, body := range diff.Despawned {
		s.unbind(body.ID())
	}

	//3.- The coordinator ticks every engine: recording captures, scrubbing moves cursors.
	s.coord.Tick(dt)

	s.now += dt
	s.tick++
	s.publish()
}

func (s *Session) bind(body *world.Body) {
	if _, exists := s.byID[body.ID()]; exists {
		return
	}
	engine := rewind.NewEngine(body.ID(), body, s.cfg.Engine,
		rewind.WithLogger(s.log),
		rewind.WithStartTime(s.now),
	)
	b := &binding{
		body:       body,
		engine:     engine,
		visualizer: timeline.New(body.ID(), timeline.WithSink(s.sink), timeline.WithLogger(s.log)),
	}
	pause := engine.Config().PauseAnimationDuringScrub
	b.unsubscribe = append(b.unsubscribe, engine.Subscribe(func(event rewind.Event) {
		switch event.Kind {
		case rewind.ManipulationStarted:
			body.SetManipulated(true)
			body.SetAnimationPaused(pause)
		case rewind.ManipulationCompleted:
			body.SetManipulated(false)
			body.SetAnimationPaused(false)
		}
		s.recordEvent(body.ID(), event.Kind)
	}))
	if body.Kind() == world.KindPawn {
		b.unsubscribe = append(b.unsubscribe, s.rig.Attach(engine))
		s.player = b
		s.router.SetPlayer(engine, s.world.Pawn(), s.rig)
	}
	s.bindings = append(s.bindings, b)
	s.byID[body.ID()] = b
	//1.- Registering last lets a running manipulation pick the engine up with listeners in place.
	b.handle = s.coord.Register(engine, b.visualizer)
}

func (s *Session) unbind(id string) {
	b, ok := s.byID[id]
	if !ok {
		return
	}
	//1.- Unregister first so a scrubbing engine ends while its listeners still run.
	s.coord.Unregister(b.handle)
	for _, unsubscribe := range b.unsubscribe {
		unsubscribe()
	}
	delete(s.byID, id)
	for i, candidate := range s.bindings {
		if candidate == b {
			s.bindings = append(s.bindings[:i], s.bindings[i+1:]...)
			break
		}
	}
	if s.player == b {
		s.player = nil
		s.router.SetPlayer(nil, nil, nil)
	}
}

func (s *Session) recordEvent(entityID string, kind rewind.EventKind) {
	s.eventCount.Add(1)
	s.events = append(s.events, dump.Event{Tick: s.tick, Time: s.now, EntityID: entityID, Kind: kind.String()})
	if overflow := len(s.events) - s.cfg.EventLog; overflow > 0 {
		s.events = append(s.events[:0], s.events[overflow:]...)
	}
	s.log.Debug("manipulation event", logging.String("engine_id", entityID), logging.Stringer("kind", kind))
}

func (s *Session) publish() {
	status := &Status{
		SessionID:       s.id,
		Tick:            s.tick,
		Time:            s.now,
		Preset:          s.coord.Preset().String(),
		Direction:       s.coord.Direction().String(),
		ScrubActive:     s.coord.IsScrubActive(),
		TimelineVisible: s.coord.TimelineVisible(),
		Engines:         make([]EngineStatus, 0, len(s.bindings)),
		Events:          s.eventCount.Load(),
	}
	for _, b := range s.bindings {
		status.Engines = append(status.Engines, describe(b))
	}
	if s.player != nil {
		status.PlayerID = s.player.body.ID()
		view := s.rig.View(s.player.body.Transform())
		status.Camera = &view
	}
	s.status.Store(status)
}

func describe(b *binding) EngineStatus {
	engine := b.engine
	out := EngineStatus{
		ID:              engine.ID(),
		Kind:            b.body.Kind().String(),
		Mode:            engine.Mode().String(),
		Participating:   engine.IsParticipating(),
		PlaybackRate:    engine.PlaybackRate(),
		Snapshots:       engine.HistoryLen(),
		AnimationPaused: b.body.AnimationPaused(),
	}
	out.Cursor, out.HasCursor = engine.ScrubCursor()
	out.Oldest, _ = engine.OldestTime()
	out.Newest, _ = engine.NewestTime()
	return out
}

func (s *Session) capture() dump.Capture {
	capture := dump.Capture{
		SessionID: s.id,
		Tick:      s.tick,
		Time:      s.now,
		Preset:    s.coord.Preset().String(),
		Direction: s.coord.Direction().String(),
		Entities:  make([]dump.EntityHistory, 0, len(s.bindings)),
		Events:    append([]dump.Event(nil), s.events...),
	}
	for _, b := range s.bindings {
		entity := dump.EntityHistory{
			ID:            b.engine.ID(),
			Kind:          b.body.Kind().String(),
			Mode:          b.engine.Mode().String(),
			Participating: b.engine.IsParticipating(),
			Snapshots:     make([]history.Snapshot, 0, b.engine.HistoryLen()),
		}
		for _, snapshot := range b.engine.History() {
			entity.Snapshots = append(entity.Snapshots, snapshot)
		}
		capture.Entities = append(capture.Entities, entity)
	}
	return capture
}
