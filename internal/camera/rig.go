package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"driftpursuit/rewind/internal/kinematics"
	"driftpursuit/rewind/internal/logging"
	"driftpursuit/rewind/internal/rewind"
)

// Config tunes the boom lengths and the free-look pitch limit.
type Config struct {
	FollowArmLength   float64
	OverviewArmLength float64
	MaxPitchDeg       float64
	DefaultPitchDeg   float64
}

// DefaultConfig returns a close follow boom and a wide overview boom.
func DefaultConfig() Config {
	return Config{FollowArmLength: 500, OverviewArmLength: 2000, MaxPitchDeg: 80, DefaultPitchDeg: -15}
}

// View is the resolved eye placement for one frame.
type View struct {
	Eye       mgl64.Vec3 `json:"eye"`
	Target    mgl64.Vec3 `json:"target"`
	Rotation  mgl64.Quat `json:"rotation"`
	ArmLength float64    `json:"arm_length"`
	YawDeg    float64    `json:"yaw_deg"`
	PitchDeg  float64    `json:"pitch_deg"`
	Overview  bool       `json:"overview"`
}

// Rig is a spring-arm camera that follows the pawn and switches to a free overview while time is manipulated.
type Rig struct {
	cfg Config
	log *logging.Logger

	overview  bool
	armLength float64
	yaw       float64
	pitch     float64
}

// NewRig builds a rig in follow mode.
func NewRig(cfg Config, logger *logging.Logger) *Rig {
	if !(cfg.FollowArmLength > 0) {
		cfg.FollowArmLength = DefaultConfig().FollowArmLength
	}
	if !(cfg.OverviewArmLength > 0) {
		cfg.OverviewArmLength = DefaultConfig().OverviewArmLength
	}
	if !(cfg.MaxPitchDeg > 0) || cfg.MaxPitchDeg > 89 {
		cfg.MaxPitchDeg = DefaultConfig().MaxPitchDeg
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Rig{
		cfg:       cfg,
		log:       logger.Named("camera"),
		armLength: cfg.FollowArmLength,
		pitch:     clampPitch(cfg.DefaultPitchDeg, cfg.MaxPitchDeg),
	}
}

// Attach subscribes the rig to engine manipulation events and returns the unsubscribe function.
func (r *Rig) Attach(engine *rewind.Engine) func() {
	if r == nil || engine == nil {
		return func() {}
	}
	return engine.Subscribe(func(event rewind.Event) {
		switch event.Kind {
		case rewind.ManipulationStarted:
			r.enterOverview()
		case rewind.ManipulationCompleted:
			r.exitOverview()
		}
	})
}

// Overview reports whether the rig is detached from the pawn.
func (r *Rig) Overview() bool { return r.overview }

// ArmLength returns the current boom length.
func (r *Rig) ArmLength() float64 { return r.armLength }

// Orientation returns the free-look yaw and pitch in degrees.
func (r *Rig) Orientation() (yawDeg, pitchDeg float64) { return r.yaw, r.pitch }

// Look rotates the overview boom; it is ignored while following the pawn.
func (r *Rig) Look(dx, dy float64) bool {
	if r == nil || !r.overview || math.IsNaN(dx) || math.IsNaN(dy) {
		return false
	}
	r.yaw = kinematics.WrapAngleDeg(r.yaw + dx)
	r.pitch = clampPitch(r.pitch-dy, r.cfg.MaxPitchDeg)
	return true
}

// View resolves the eye for a target pose. Following mode trails the target's heading.
func (r *Rig) View(target kinematics.Transform) View {
	yaw := r.yaw
	if !r.overview {
		yaw = kinematics.HeadingDeg(target.Rotation)
	}
	//1.- Yaw around the up axis, then pitch around the rotated lateral axis.
	rotation := mgl64.QuatRotate(mgl64.DegToRad(yaw), kinematics.UpAxis).
		Mul(mgl64.QuatRotate(mgl64.DegToRad(-r.pitch), mgl64.Vec3{0, 1, 0}))
	//2.- The eye sits arm length behind the target along the boom's forward axis.
	forward := rotation.Rotate(mgl64.Vec3{1, 0, 0})
	return View{
		Eye:       target.Position.Sub(forward.Mul(r.armLength)),
		Target:    target.Position,
		Rotation:  rotation,
		ArmLength: r.armLength,
		YawDeg:    yaw,
		PitchDeg:  r.pitch,
		Overview:  r.overview,
	}
}

func (r *Rig) enterOverview() {
	if r.overview {
		return
	}
	r.overview = true
	r.armLength = r.cfg.OverviewArmLength
	r.log.Debug("camera switched to overview", logging.Float64("arm_length", r.armLength))
}

func (r *Rig) exitOverview() {
	if !r.overview {
		return
	}
	r.overview = false
	r.armLength = r.cfg.FollowArmLength
	r.log.Debug("camera returned to follow", logging.Float64("arm_length", r.armLength))
}

func clampPitch(pitch, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, pitch))
}
