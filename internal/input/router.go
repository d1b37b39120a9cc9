package input

import (
	"driftpursuit/rewind/internal/camera"
	"driftpursuit/rewind/internal/coordinator"
	"driftpursuit/rewind/internal/logging"
	"driftpursuit/rewind/internal/rewind"
	"driftpursuit/rewind/internal/world"
)

// Router turns validated commands into coordinator, pawn and camera calls.
// It must only be used from the tick goroutine.
type Router struct {
	coord *coordinator.Coordinator
	log   *logging.Logger

	engine *rewind.Engine
	pawn   *world.Pawn
	rig    *camera.Rig
}

// NewRouter binds the router to the session's coordinator.
func NewRouter(coord *coordinator.Coordinator, logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.L()
	}
	return &Router{coord: coord, log: logger.Named("input_router")}
}

// SetPlayer routes per-entity controls to the player's engine, pawn and camera rig.
func (r *Router) SetPlayer(engine *rewind.Engine, pawn *world.Pawn, rig *camera.Rig) {
	r.engine, r.pawn, r.rig = engine, pawn, rig
}

// Apply executes cmd. It reports whether the command changed anything;
// controls ignored by the current state are not errors.
func (r *Router) Apply(cmd Command) (bool, error) {
	if err := cmd.Validate(); err != nil {
		return false, err
	}
	switch cmd.Action {
	case ActionRewindStart:
		r.coord.StartGlobalRewind()
	case ActionRewindStop:
		r.coord.StopGlobalRewind()
	case ActionFastForwardStart:
		r.coord.StartGlobalFastForward()
	case ActionFastForwardStop:
		r.coord.StopGlobalFastForward()
	case ActionToggleScrub:
		r.coord.ToggleTimeScrub()
	case ActionSetSpeed:
		preset, _ := coordinator.ParsePreset(cmd.Preset)
		r.coord.SetRewindSpeed(preset)
	case ActionToggleTimeline:
		r.coord.ToggleGlobalTimelineVisualization()
	case ActionToggleParticipation:
		if r.engine == nil {
			return false, nil
		}
		r.engine.SetParticipating(!r.engine.IsParticipating())
	case ActionMove:
		return r.pawn.Move(cmd.X, cmd.Y), nil
	case ActionJump:
		return r.pawn.Jump(), nil
	case ActionStopJump:
		r.pawn.StopJumping()
	case ActionLook:
		return r.look(cmd.X, cmd.Y), nil
	}
	return true, nil
}

// look orbits the overview camera while the player's history is scrubbed, otherwise turns the pawn.
func (r *Router) look(dx, dy float64) bool {
	if r.engine != nil && r.engine.IsManipulating() {
		return r.rig.Look(dx, dy)
	}
	return r.pawn.Turn(dx)
}
