package coordinator

import (
	"iter"

	"driftpursuit/rewind/internal/logging"
	"driftpursuit/rewind/internal/rewind"
	"driftpursuit/rewind/internal/timeline"
)

// Direction is the global manipulation command currently in force.
type Direction uint8

const (
	// Idle means no global manipulation is running.
	Idle Direction = iota
	// Rewinding drives engines backwards at the preset speed.
	Rewinding
	// FastForwarding drives engines forwards at the preset speed.
	FastForwarding
	// Frozen holds every engine at its cursor.
	Frozen
)

func (d Direction) String() string {
	switch d {
	case Rewinding:
		return "rewind"
	case FastForwarding:
		return "fast_forward"
	case Frozen:
		return "frozen"
	default:
		return "idle"
	}
}

// Visualizer presents an engine's history when the global timeline is visible.
type Visualizer interface {
	Present(src timeline.Source, visible bool)
}

// Handle identifies a registered engine; stale handles never alias a reused slot.
type Handle struct {
	index      uint32
	generation uint32
}

// Valid reports whether h was issued by Register.
func (h Handle) Valid() bool { return h.generation != 0 }

type slotState uint8

const (
	slotFree slotState = iota
	slotPending
	slotActive
	slotRetiring
)

type slot struct {
	generation uint32
	state      slotState
	revive     slotState
	engine     *rewind.Engine
	visualizer Visualizer
}

// Coordinator fans global rewind commands out to every participating engine.
// It is owned by the simulation session and must only be used from the tick goroutine.
type Coordinator struct {
	log    *logging.Logger
	speeds SpeedTable
	preset SpeedPreset

	direction  Direction
	heldFrozen bool
	timelineOn bool

	slots   []slot
	free    []uint32
	dirty   bool
	fanning int
}

// Option customises coordinator construction.
type Option func(*Coordinator)

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithSpeedTable overrides the preset multipliers.
func WithSpeedTable(table SpeedTable) Option {
	return func(c *Coordinator) { c.speeds = table }
}

// WithPreset selects the initial speed preset.
func WithPreset(preset SpeedPreset) Option {
	return func(c *Coordinator) {
		if preset.Valid() {
			c.preset = preset
		}
	}
}

// New constructs an idle coordinator with no registered engines.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{log: logging.L(), speeds: DefaultSpeedTable(), preset: Normal}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.log = c.log.Named("coordinator")
	return c
}

// Preset returns the active speed preset.
func (c *Coordinator) Preset() SpeedPreset { return c.preset }

// Speeds returns the preset multiplier table.
func (c *Coordinator) Speeds() SpeedTable { return c.speeds }

// Direction returns the global command in force.
func (c *Coordinator) Direction() Direction { return c.direction }

// TimelineVisible reports whether timeline markers are presented.
func (c *Coordinator) TimelineVisible() bool { return c.timelineOn }

// Len returns the number of registered engines, including those awaiting the next tick.
func (c *Coordinator) Len() int {
	count := 0
	for i := range c.slots {
		if c.slots[i].state == slotActive || c.slots[i].state == slotPending {
			count++
		}
	}
	return count
}

// IsScrubActive reports whether any registered participating engine is scrubbing.
func (c *Coordinator) IsScrubActive() bool {
	for _, engine := range c.eligible() {
		if engine.IsManipulating() {
			return true
		}
	}
	return false
}

// Engines yields every active registration.
func (c *Coordinator) Engines() iter.Seq2[Handle, *rewind.Engine] {
	return func(yield func(Handle, *rewind.Engine) bool) {
		for i := range c.slots {
			s := &c.slots[i]
			if s.state != slotActive {
				continue
			}
			if !yield(Handle{index: uint32(i), generation: s.generation}, s.engine) {
				return
			}
		}
	}
}

// Lookup resolves a handle to its engine.
func (c *Coordinator) Lookup(h Handle) (*rewind.Engine, bool) {
	s, ok := c.slotFor(h)
	if !ok || s.state == slotRetiring {
		return nil, false
	}
	return s.engine, true
}

// Register adds engine to the fan-out set. visualizer may be nil.
// During a fan-out the registration takes effect at the next tick boundary.
func (c *Coordinator) Register(engine *rewind.Engine, visualizer Visualizer) Handle {
	if engine == nil {
		return Handle{}
	}
	for i := range c.slots {
		s := &c.slots[i]
		if s.engine != engine {
			continue
		}
		if s.state == slotActive || s.state == slotPending {
			return Handle{index: uint32(i), generation: s.generation}
		}
		//1.- A removal still waiting for the tick boundary is cancelled so flush never ends the engine.
		if s.state == slotRetiring && s.revive != slotFree {
			s.state = s.revive
			s.revive = slotFree
			s.visualizer = visualizer
			c.log.Debug("deferred unregistration cancelled", logging.String("engine_id", engine.ID()))
			return Handle{index: uint32(i), generation: s.generation}
		}
	}
	//2.- Reuse a freed slot before growing the arena.
	var index uint32
	if n := len(c.free); n > 0 {
		index = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		c.slots = append(c.slots, slot{})
		index = uint32(len(c.slots) - 1)
	}
	s := &c.slots[index]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.engine = engine
	s.visualizer = visualizer
	s.state = slotPending
	handle := Handle{index: index, generation: s.generation}

	if c.fanning > 0 {
		c.dirty = true
		c.log.Debug("registration deferred to next tick", logging.String("engine_id", engine.ID()))
		return handle
	}
	c.activate(s)
	return handle
}

// Unregister removes the engine behind h, ending its manipulation first.
// During a fan-out the removal takes effect at the next tick boundary.
func (c *Coordinator) Unregister(h Handle) bool {
	s, ok := c.slotFor(h)
	if !ok || s.state == slotRetiring {
		return false
	}
	if c.fanning > 0 {
		s.revive = s.state
		s.state = slotRetiring
		c.dirty = true
		c.log.Debug("unregistration deferred to next tick", logging.String("engine_id", s.engine.ID()))
		return true
	}
	c.retire(h.index)
	return true
}

// StartGlobalRewind scrubs every participating engine backwards at the preset speed.
func (c *Coordinator) StartGlobalRewind() {
	c.start(Rewinding)
}

// StartGlobalFastForward scrubs every participating engine forwards at the preset speed.
func (c *Coordinator) StartGlobalFastForward() {
	c.start(FastForwarding)
}

// StopGlobalRewind ends a rewind; it is a no-op unless a rewind is running.
func (c *Coordinator) StopGlobalRewind() {
	c.stop(Rewinding)
}

// StopGlobalFastForward ends a fast-forward; it is a no-op unless one is running.
func (c *Coordinator) StopGlobalFastForward() {
	c.stop(FastForwarding)
}

// ToggleTimeScrub freezes every participating engine at its cursor, or ends any global manipulation.
func (c *Coordinator) ToggleTimeScrub() {
	if c.direction != Idle {
		c.heldFrozen = false
		c.endAll()
		return
	}
	c.direction = Frozen
	c.heldFrozen = true
	c.fanOut(func(engine *rewind.Engine) {
		engine.SetPlaybackRate(0)
		engine.BeginManipulation()
	})
	c.log.Debug("time scrub frozen", logging.Int("engines", c.Len()))
}

// SetRewindSpeed selects preset and re-applies it to running rewinds or fast-forwards.
func (c *Coordinator) SetRewindSpeed(preset SpeedPreset) {
	if !preset.Valid() {
		c.log.Debug("speed preset ignored", logging.Int("preset", int(preset)))
		return
	}
	c.preset = preset
	c.log.Debug("speed preset changed", logging.Stringer("preset", preset))
	if c.direction != Rewinding && c.direction != FastForwarding {
		return
	}
	rate := c.rate()
	c.fanOut(func(engine *rewind.Engine) {
		if engine.IsManipulating() {
			engine.SetPlaybackRate(rate)
		}
	})
}

// ToggleGlobalTimelineVisualization flips marker visibility for every registered visualizer.
func (c *Coordinator) ToggleGlobalTimelineVisualization() bool {
	c.timelineOn = !c.timelineOn
	c.log.Debug("timeline visualization toggled", logging.Bool("visible", c.timelineOn))
	c.present()
	return c.timelineOn
}

// Tick applies deferred registrations, advances every engine by dt and refreshes visible timelines.
func (c *Coordinator) Tick(dt float64) {
	//1.- Registration changes queued during the previous tick land before any cursor moves.
	c.flush()
	//2.- Engines that joined or re-enabled participation pick up the command in force.
	c.reconcile()
	c.fanning++
	for i := range c.slots {
		if c.slots[i].state == slotActive {
			c.slots[i].engine.Tick(dt)
		}
	}
	c.fanning--
	if c.timelineOn {
		c.present()
	}
}

func (c *Coordinator) start(direction Direction) {
	c.direction = direction
	rate := c.rate()
	c.fanOut(func(engine *rewind.Engine) {
		engine.SetPlaybackRate(rate)
		engine.BeginManipulation()
	})
	c.log.Debug("global manipulation started",
		logging.Stringer("direction", direction),
		logging.Stringer("preset", c.preset),
		logging.Float64("playback_rate", rate))
}

func (c *Coordinator) stop(direction Direction) {
	if c.direction != direction {
		return
	}
	//1.- A freeze that was in place before the sweep resumes as a hold instead of ending.
	if c.heldFrozen {
		c.direction = Frozen
		c.fanOut(func(engine *rewind.Engine) {
			engine.SetPlaybackRate(0)
		})
		c.log.Debug("global manipulation returned to hold", logging.Stringer("direction", direction))
		return
	}
	c.endAll()
}

func (c *Coordinator) endAll() {
	previous := c.direction
	c.direction = Idle
	c.fanOut(func(engine *rewind.Engine) {
		engine.EndManipulation()
	})
	c.log.Debug("global manipulation stopped", logging.Stringer("direction", previous))
}

// rate returns the signed playback rate for the command in force.
func (c *Coordinator) rate() float64 {
	switch c.direction {
	case Rewinding:
		return -c.speeds.Multiplier(c.preset)
	case FastForwarding:
		return c.speeds.Multiplier(c.preset)
	default:
		return 0
	}
}

// fanOut applies fn to every active participating engine within the current call.
func (c *Coordinator) fanOut(fn func(*rewind.Engine)) {
	c.fanning++
	defer func() { c.fanning-- }()
	for i := range c.slots {
		s := &c.slots[i]
		if s.state == slotActive && s.engine.IsParticipating() {
			fn(s.engine)
		}
	}
}

func (c *Coordinator) eligible() []*rewind.Engine {
	engines := make([]*rewind.Engine, 0, len(c.slots))
	for i := range c.slots {
		s := &c.slots[i]
		if s.state == slotActive && s.engine.IsParticipating() {
			engines = append(engines, s.engine)
		}
	}
	return engines
}

func (c *Coordinator) reconcile() {
	if c.direction == Idle {
		return
	}
	rate := c.rate()
	c.fanOut(func(engine *rewind.Engine) {
		if !engine.IsManipulating() {
			engine.SetPlaybackRate(rate)
			engine.BeginManipulation()
		}
	})
}

func (c *Coordinator) flush() {
	if !c.dirty {
		return
	}
	c.dirty = false
	for i := range c.slots {
		switch c.slots[i].state {
		case slotPending:
			c.activate(&c.slots[i])
		case slotRetiring:
			c.retire(uint32(i))
		}
	}
}

// activate makes a slot visible to fan-out and joins any manipulation in force.
func (c *Coordinator) activate(s *slot) {
	s.state = slotActive
	c.log.Debug("engine registered", logging.String("engine_id", s.engine.ID()))
	if c.direction != Idle && s.engine.IsParticipating() {
		c.fanning++
		s.engine.SetPlaybackRate(c.rate())
		s.engine.BeginManipulation()
		c.fanning--
	}
	if c.timelineOn && s.visualizer != nil {
		s.visualizer.Present(s.engine, true)
	}
}

func (c *Coordinator) retire(index uint32) {
	s := &c.slots[index]
	engine := s.engine
	//1.- Leave the slot out of fan-out before ending so listeners cannot re-enter it.
	s.state = slotRetiring
	s.revive = slotFree
	c.fanning++
	engine.EndManipulation()
	if s.visualizer != nil {
		s.visualizer.Present(engine, false)
	}
	c.fanning--
	//2.- Listeners may have grown the arena, so re-resolve the slot before freeing it.
	s = &c.slots[index]
	s.state = slotFree
	s.engine = nil
	s.visualizer = nil
	c.free = append(c.free, index)
	c.log.Debug("engine unregistered", logging.String("engine_id", engine.ID()))
}

func (c *Coordinator) present() {
	c.fanning++
	defer func() { c.fanning-- }()
	for i := range c.slots {
		s := &c.slots[i]
		if s.state == slotActive && s.visualizer != nil {
			s.visualizer.Present(s.engine, c.timelineOn)
		}
	}
}

func (c *Coordinator) slotFor(h Handle) (*slot, bool) {
	if !h.Valid() || int(h.index) >= len(c.slots) {
		return nil, false
	}
	s := &c.slots[h.index]
	if s.generation != h.generation || s.state == slotFree {
		return nil, false
	}
	return s, true
}
