package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/kinematics"
)

// Kind distinguishes autonomous drifters from the player-controlled pawn.
type Kind uint8

const (
	KindDrifter Kind = iota
	KindPawn
)

func (k Kind) String() string {
	if k == KindPawn {
		return "pawn"
	}
	return "drifter"
}

// Body is one simulated object whose pose and motion can be recorded and re-posed.
type Body struct {
	id   string
	kind Kind

	transform kinematics.Transform
	heading   float64
	velocity  mgl64.Vec3
	mode      history.MovementMode

	speed    float64
	turnRate float64

	manipulated     bool
	animationPaused bool
	animationPhase  float64
}

// ID returns the unique body identifier.
func (b *Body) ID() string { return b.id }

// Kind reports whether the body is a drifter or the pawn.
func (b *Body) Kind() Kind { return b.kind }

// Transform returns the current pose.
func (b *Body) Transform() kinematics.Transform { return b.transform }

// SetTransform writes a pose directly; no collision or physics response follows.
func (b *Body) SetTransform(t kinematics.Transform) {
	b.transform = t
	b.heading = kinematics.HeadingDeg(t.Rotation)
}

// Kinematics returns the velocity and movement mode recorded alongside the pose.
func (b *Body) Kinematics() (mgl64.Vec3, history.MovementMode) { return b.velocity, b.mode }

// SetKinematics restores velocity and movement mode, typically after a scrub.
func (b *Body) SetKinematics(velocity mgl64.Vec3, mode history.MovementMode) {
	b.velocity = velocity
	b.mode = mode
}

// Heading returns the facing in degrees around the up axis.
func (b *Body) Heading() float64 { return b.heading }

// Velocity returns the current linear velocity.
func (b *Body) Velocity() mgl64.Vec3 { return b.velocity }

// Mode returns the current movement mode.
func (b *Body) Mode() history.MovementMode { return b.mode }

// Manipulated reports whether the body's pose is currently driven from history.
func (b *Body) Manipulated() bool { return b.manipulated }

// SetManipulated hands pose ownership to a history scrub (true) or back to the world (false).
func (b *Body) SetManipulated(manipulated bool) { b.manipulated = manipulated }

// AnimationPaused reports whether the body's animation clock is frozen.
func (b *Body) AnimationPaused() bool { return b.animationPaused }

// SetAnimationPaused freezes or resumes the animation clock.
func (b *Body) SetAnimationPaused(paused bool) { b.animationPaused = paused }

// AnimationPhase returns the accumulated animation time in seconds.
func (b *Body) AnimationPhase() float64 { return b.animationPhase }

func (b *Body) setHeading(headingDeg float64) {
	b.heading = kinematics.WrapAngleDeg(headingDeg)
	b.transform.Rotation = kinematics.HeadingQuat(b.heading)
}
