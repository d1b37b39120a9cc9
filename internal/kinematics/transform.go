package kinematics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// UpAxis is the world vertical used for heading rotations.
var UpAxis = mgl64.Vec3{0, 0, 1}

// Transform is the pose recorded for an entity: position, orientation and scale.
type Transform struct {
	Position mgl64.Vec3 `json:"position"`
	Rotation mgl64.Quat `json:"rotation"`
	Scale    mgl64.Vec3 `json:"scale"`
}

// Identity returns a transform at the origin with no rotation and unit scale.
func Identity() Transform {
	return Transform{Rotation: mgl64.QuatIdent(), Scale: mgl64.Vec3{1, 1, 1}}
}

// At returns an identity transform translated to position.
func At(position mgl64.Vec3) Transform {
	t := Identity()
	t.Position = position
	return t
}

// WithHeading returns a copy of t rotated to face headingDeg around UpAxis.
func (t Transform) WithHeading(headingDeg float64) Transform {
	t.Rotation = HeadingQuat(headingDeg)
	return t
}

// HeadingQuat builds the rotation for a heading in degrees around UpAxis.
func HeadingQuat(headingDeg float64) mgl64.Quat {
	return mgl64.QuatRotate(mgl64.DegToRad(headingDeg), UpAxis)
}

// LerpVec3 linearly interpolates between a and b.
func LerpVec3(a, b mgl64.Vec3, alpha float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(alpha))
}

// Slerp interpolates rotations along the shortest arc.
func Slerp(a, b mgl64.Quat, alpha float64) mgl64.Quat {
	//1.- Flip the target into a's hemisphere so the blend never takes the long way round.
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	//2.- Endpoints are returned untouched so exact samples stay exact.
	if alpha <= 0 {
		return a
	}
	if alpha >= 1 {
		return b
	}
	return mgl64.QuatSlerp(a, b, alpha).Normalize()
}

// Lerp blends two transforms; alpha is clamped to [0, 1].
func Lerp(a, b Transform, alpha float64) Transform {
	alpha = clamp01(alpha)
	return Transform{
		Position: LerpVec3(a.Position, b.Position, alpha),
		Rotation: Slerp(a.Rotation, b.Rotation, alpha),
		Scale:    LerpVec3(a.Scale, b.Scale, alpha),
	}
}

// ApproxEqual reports whether two transforms match within eps on every component.
func (t Transform) ApproxEqual(other Transform, eps float64) bool {
	if !Vec3Near(t.Position, other.Position, eps) || !Vec3Near(t.Scale, other.Scale, eps) {
		return false
	}
	//1.- q and -q encode the same orientation.
	return quatNear(t.Rotation, other.Rotation, eps) || quatNear(t.Rotation, other.Rotation.Scale(-1), eps)
}

// Vec3Near reports whether every component of a and b differs by at most eps.
func Vec3Near(a, b mgl64.Vec3, eps float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

func quatNear(a, b mgl64.Quat, eps float64) bool {
	return math.Abs(a.W-b.W) <= eps && Vec3Near(a.V, b.V, eps)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// HeadingDeg extracts the yaw around UpAxis from q, in degrees.
func HeadingDeg(q mgl64.Quat) float64 {
	x, y, z := q.V[0], q.V[1], q.V[2]
	yaw := math.Atan2(2*(q.W*z+x*y), 1-2*(y*y+z*z))
	return WrapAngleDeg(mgl64.RadToDeg(yaw))
}

// Forward returns the unit vector a heading faces in the horizontal plane.
func Forward(headingDeg float64) mgl64.Vec3 {
	rad := mgl64.DegToRad(headingDeg)
	return mgl64.Vec3{math.Cos(rad), math.Sin(rad), 0}
}
