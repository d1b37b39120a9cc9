package history

import (
	"github.com/go-gl/mathgl/mgl64"

	"driftpursuit/rewind/internal/kinematics"
)

// MovementMode labels how an entity was moving when a snapshot was captured.
type MovementMode uint8

const (
	MovementNone MovementMode = iota
	MovementWalking
	MovementFalling
	MovementFlying
)

func (m MovementMode) String() string {
	switch m {
	case MovementWalking:
		return "walking"
	case MovementFalling:
		return "falling"
	case MovementFlying:
		return "flying"
	default:
		return "none"
	}
}

// Snapshot is one recorded instant of an entity's kinematic state.
type Snapshot struct {
	Timestamp float64              `json:"timestamp"`
	Transform kinematics.Transform `json:"transform"`
	// HasKinematics is set when Velocity and Mode were recorded.
	HasKinematics bool         `json:"has_kinematics,omitempty"`
	Velocity      mgl64.Vec3   `json:"velocity"`
	Mode          MovementMode `json:"mode"`
}

// interpolate blends a towards b; alpha is the normalised position between them.
func interpolate(a, b Snapshot, alpha float64, timestamp float64) Snapshot {
	out := Snapshot{
		Timestamp: timestamp,
		Transform: kinematics.Lerp(a.Transform, b.Transform, alpha),
	}
	//1.- Velocity only blends when both ends recorded it; otherwise the nearer end wins.
	switch {
	case a.HasKinematics && b.HasKinematics:
		out.HasKinematics = true
		out.Velocity = kinematics.LerpVec3(a.Velocity, b.Velocity, alpha)
		out.Mode = a.Mode
		if alpha >= 0.5 {
			out.Mode = b.Mode
		}
	case a.HasKinematics && alpha < 0.5:
		out.HasKinematics, out.Velocity, out.Mode = true, a.Velocity, a.Mode
	case b.HasKinematics && alpha >= 0.5:
		out.HasKinematics, out.Velocity, out.Mode = true, b.Velocity, b.Mode
	}
	return out
}
