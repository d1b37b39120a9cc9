package world

import (
	"iter"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/kinematics"
	"driftpursuit/rewind/internal/logging"
)

// DefaultBounds is the half extent of the square arena drifters bounce inside.
const DefaultBounds = 2000.0

// Diff lists the bodies whose lifetime changed during a step.
type Diff struct {
	Spawned   []*Body
	Despawned []*Body
}

// HasChanges reports whether the step spawned or removed anything.
func (d Diff) HasChanges() bool {
	return len(d.Spawned) > 0 || len(d.Despawned) > 0
}

// World owns every simulated body. It must only be used from the tick goroutine.
type World struct {
	log     *logging.Logger
	rng     *rand.Rand
	limits  kinematics.Limits
	bounds  float64
	pawnCfg PawnConfig
	newID   func() string

	bodies []*Body
	byID   map[string]*Body
	pawn   *Pawn

	pendingSpawn   []*Body
	pendingDespawn []string
}

// Option customises world construction.
type Option func(*World)

// WithSeed makes drifter placement and motion deterministic.
func WithSeed(seed int64) Option {
	return func(w *World) { w.rng = rand.New(rand.NewSource(seed)) }
}

// WithLimits overrides the integration limits.
func WithLimits(limits kinematics.Limits) Option {
	return func(w *World) { w.limits = limits }
}

// WithBounds sets the arena half extent.
func WithBounds(bounds float64) Option {
	return func(w *World) {
		if bounds > 0 {
			w.bounds = bounds
		}
	}
}

// WithPawnConfig tunes the player body.
func WithPawnConfig(cfg PawnConfig) Option {
	return func(w *World) { w.pawnCfg = cfg }
}

// WithIDSource replaces the body identifier generator.
func WithIDSource(next func() string) Option {
	return func(w *World) {
		if next != nil {
			w.newID = next
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *World) {
		if logger != nil {
			w.log = logger
		}
	}
}

// New constructs an empty world.
func New(opts ...Option) *World {
	w := &World{
		log:     logging.L(),
		rng:     rand.New(rand.NewSource(1)),
		limits:  kinematics.DefaultLimits(),
		bounds:  DefaultBounds,
		pawnCfg: DefaultPawnConfig(),
		newID:   uuid.NewString,
		byID:    make(map[string]*Body),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	w.log = w.log.Named("world")
	return w
}

// Len returns the number of live bodies.
func (w *World) Len() int { return len(w.bodies) }

// Body looks up a live body.
func (w *World) Body(id string) (*Body, bool) {
	body, ok := w.byID[id]
	return body, ok
}

// Bodies yields every live body in spawn order.
func (w *World) Bodies() iter.Seq[*Body] {
	return func(yield func(*Body) bool) {
		for _, body := range w.bodies {
			if !yield(body) {
				return
			}
		}
	}
}

// Pawn returns the player-controlled pawn, or nil before SpawnPawn.
func (w *World) Pawn() *Pawn { return w.pawn }

// SpawnPawn queues the player body; a world holds at most one pawn.
func (w *World) SpawnPawn(at kinematics.Transform) *Pawn {
	if w.pawn != nil {
		return w.pawn
	}
	body := &Body{id: w.newID(), kind: KindPawn, transform: at, mode: history.MovementWalking}
	body.heading = kinematics.HeadingDeg(at.Rotation)
	w.pawn = &Pawn{body: body, cfg: w.pawnCfg}
	w.pendingSpawn = append(w.pendingSpawn, body)
	return w.pawn
}

// SpawnDrifter queues an autonomous body with a random position and course.
func (w *World) SpawnDrifter() *Body {
	//1.- Draw every random value up front so the sequence stays deterministic per seed.
	x := (w.rng.Float64()*2 - 1) * w.bounds * 0.5
	y := (w.rng.Float64()*2 - 1) * w.bounds * 0.5
	z := 100 + w.rng.Float64()*400
	heading := w.rng.Float64()*360 - 180
	speed := 100 + w.rng.Float64()*300
	turnRate := w.rng.Float64()*90 - 45

	body := &Body{
		id:        w.newID(),
		kind:      KindDrifter,
		transform: kinematics.At(mgl64.Vec3{x, y, z}).WithHeading(heading),
		heading:   heading,
		speed:     speed,
		turnRate:  turnRate,
		mode:      history.MovementFlying,
	}
	body.velocity = kinematics.Forward(heading).Mul(speed)
	w.pendingSpawn = append(w.pendingSpawn, body)
	return body
}

// Populate queues count drifters.
func (w *World) Populate(count int) {
	for i := 0; i < count; i++ {
		w.SpawnDrifter()
	}
}

// Despawn queues removal of the body identified by id.
func (w *World) Despawn(id string) bool {
	if _, ok := w.byID[id]; !ok {
		return false
	}
	w.pendingDespawn = append(w.pendingDespawn, id)
	return true
}

// Advance applies queued lifetime changes, then integrates every body not owned by a scrub.
func (w *World) Advance(step float64) Diff {
	if w == nil || step < 0 || math.IsNaN(step) {
		return Diff{}
	}
	//1.- Lifetime changes land at the step boundary.
	diff := w.applyPending()

	for _, body := range w.bodies {
		//2.- Animation clocks run unless paused for a scrub.
		if !body.animationPaused {
			body.animationPhase += step
		}
		//3.- Scrubbed bodies keep the pose written from history.
		if body.manipulated || step == 0 {
			continue
		}
		if w.pawn != nil && body == w.pawn.body {
			w.pawn.advance(step, w.limits)
			continue
		}
		w.advanceDrifter(body, step)
	}
	return diff
}

func (w *World) applyPending() Diff {
	var diff Diff
	for _, body := range w.pendingSpawn {
		w.bodies = append(w.bodies, body)
		w.byID[body.id] = body
		diff.Spawned = append(diff.Spawned, body)
		w.log.Debug("body spawned", logging.String("body_id", body.id), logging.Stringer("kind", body.kind))
	}
	w.pendingSpawn = nil

	for _, id := range w.pendingDespawn {
		body, ok := w.byID[id]
		if !ok {
			continue
		}
		delete(w.byID, id)
		for i, candidate := range w.bodies {
			if candidate == body {
				w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
				break
			}
		}
		if w.pawn != nil && w.pawn.body == body {
			w.pawn = nil
		}
		diff.Despawned = append(diff.Despawned, body)
		w.log.Debug("body despawned", logging.String("body_id", id))
	}
	w.pendingDespawn = nil
	return diff
}

func (w *World) advanceDrifter(body *Body, step float64) {
	//1.- Follow a constant-rate turn at constant speed.
	body.setHeading(kinematics.IntegrateHeading(body.heading, body.turnRate, step, w.limits))
	velocity := kinematics.Forward(body.heading).Mul(body.speed)
	body.velocity = kinematics.IntegrateLinear(&body.transform.Position, velocity, step, w.limits)

	//2.- Reflect off the arena walls so drifters stay in view.
	pos := &body.transform.Position
	if math.Abs(pos.X()) > w.bounds {
		pos[0] = math.Copysign(w.bounds, pos.X())
		body.setHeading(180 - body.heading)
	}
	if math.Abs(pos.Y()) > w.bounds {
		pos[1] = math.Copysign(w.bounds, pos.Y())
		body.setHeading(-body.heading)
	}
}
