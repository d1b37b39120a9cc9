package rewind

import (
	"github.com/go-gl/mathgl/mgl64"

	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/kinematics"
)

// Entity is the live object an engine records and re-poses.
type Entity interface {
	Transform() kinematics.Transform
	// SetTransform writes a pose without triggering any physics or collision response.
	SetTransform(kinematics.Transform)
}

// KinematicEntity additionally exposes velocity and movement mode for recording.
type KinematicEntity interface {
	Entity
	Kinematics() (velocity mgl64.Vec3, mode history.MovementMode)
	SetKinematics(velocity mgl64.Vec3, mode history.MovementMode)
}
