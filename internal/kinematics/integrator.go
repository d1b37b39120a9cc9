package kinematics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Limits bounds the motion a body may integrate in a single step.
type Limits struct {
	MaxSpeed          float64
	MaxTurnRateDegSec float64
}

// DefaultLimits mirrors a character-sized body.
func DefaultLimits() Limits {
	return Limits{MaxSpeed: 1200, MaxTurnRateDegSec: 360}
}

// ClampMagnitude scales v down so its length does not exceed limit.
func ClampMagnitude(v mgl64.Vec3, limit float64) mgl64.Vec3 {
	//1.- Skip clamping when the limit disables the guard.
	if !(limit > 0) {
		return v
	}
	length := v.Len()
	if length == 0 || length <= limit {
		return v
	}
	//2.- Scale uniformly so the direction is preserved.
	return v.Mul(limit / length)
}

// WrapAngleDeg normalizes an angle to the [-180, 180) range.
func WrapAngleDeg(angle float64) float64 {
	wrapped := math.Mod(angle+180.0, 360.0)
	if wrapped < 0 {
		wrapped += 360.0
	}
	return wrapped - 180.0
}

// IntegrateLinear advances position by velocity over step seconds and returns the clamped velocity.
func IntegrateLinear(position *mgl64.Vec3, velocity mgl64.Vec3, step float64, limits Limits) mgl64.Vec3 {
	if position == nil || step <= 0 {
		return velocity
	}
	//1.- Clamp first so the body never outruns its configured limit.
	velocity = ClampMagnitude(velocity, limits.MaxSpeed)
	//2.- Standard explicit Euler step.
	*position = position.Add(velocity.Mul(step))
	return velocity
}

// IntegrateHeading turns headingDeg by turnRateDegSec over step seconds.
func IntegrateHeading(headingDeg, turnRateDegSec, step float64, limits Limits) float64 {
	if step <= 0 {
		return headingDeg
	}
	if limits.MaxTurnRateDegSec > 0 {
		turnRateDegSec = math.Max(-limits.MaxTurnRateDegSec, math.Min(limits.MaxTurnRateDegSec, turnRateDegSec))
	}
	return WrapAngleDeg(headingDeg + turnRateDegSec*step)
}
