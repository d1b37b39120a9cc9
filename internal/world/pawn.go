package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/kinematics"
)

// PawnConfig tunes the player-controlled body.
type PawnConfig struct {
	WalkSpeed float64
	JumpSpeed float64
	Gravity   float64
}

// DefaultPawnConfig returns character-sized movement values.
func DefaultPawnConfig() PawnConfig {
	return PawnConfig{WalkSpeed: 600, JumpSpeed: 420, Gravity: 980}
}

// Pawn wraps the player body with movement intents applied on the next world step.
type Pawn struct {
	body *Body
	cfg  PawnConfig

	forward float64
	right   float64
	jump    bool
}

// Body returns the underlying simulated body.
func (p *Pawn) Body() *Body {
	if p == nil {
		return nil
	}
	return p.body
}

// Move sets the held movement axes in [-1, 1]; ignored while time is being manipulated.
func (p *Pawn) Move(forward, right float64) bool {
	if p == nil || p.body.manipulated {
		return false
	}
	p.forward = clampAxis(forward)
	p.right = clampAxis(right)
	return true
}

// Jump requests a jump on the next step; ignored while time is being manipulated or airborne.
func (p *Pawn) Jump() bool {
	if p == nil || p.body.manipulated || p.body.mode != history.MovementWalking {
		return false
	}
	p.jump = true
	return true
}

// StopJumping cancels a jump request that has not been applied yet.
func (p *Pawn) StopJumping() {
	if p != nil {
		p.jump = false
	}
}

// Turn rotates the pawn's heading by deltaDeg.
func (p *Pawn) Turn(deltaDeg float64) bool {
	if p == nil || p.body.manipulated || math.IsNaN(deltaDeg) {
		return false
	}
	p.body.setHeading(p.body.heading + deltaDeg)
	return true
}

func (p *Pawn) advance(step float64, limits kinematics.Limits) {
	body := p.body
	//1.- Held axes drive horizontal motion relative to the current facing.
	wish := kinematics.Forward(body.heading).Mul(p.forward).Add(kinematics.Forward(body.heading - 90).Mul(p.right))
	wish = kinematics.ClampMagnitude(wish, 1).Mul(p.cfg.WalkSpeed)
	velocity := mgl64.Vec3{wish.X(), wish.Y(), body.velocity.Z()}

	//2.- Jumps only launch from the ground; gravity acts while airborne.
	if p.jump && body.mode == history.MovementWalking {
		velocity[2] = p.cfg.JumpSpeed
		body.mode = history.MovementFalling
	}
	p.jump = false
	if body.mode == history.MovementFalling {
		velocity[2] -= p.cfg.Gravity * step
	}

	body.velocity = kinematics.IntegrateLinear(&body.transform.Position, velocity, step, limits)

	//3.- Landing restores walking.
	if body.mode == history.MovementFalling && body.transform.Position.Z() <= 0 && body.velocity.Z() <= 0 {
		body.transform.Position[2] = 0
		body.velocity[2] = 0
		body.mode = history.MovementWalking
	}
}

func clampAxis(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
