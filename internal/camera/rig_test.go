package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"driftpursuit/rewind/internal/kinematics"
	"driftpursuit/rewind/internal/logging"
	"driftpursuit/rewind/internal/rewind"
)

type pose struct{ transform kinematics.Transform }

func (p *pose) Transform() kinematics.Transform     { return p.transform }
func (p *pose) SetTransform(t kinematics.Transform) { p.transform = t }

func TestRigFollowsEngineManipulation(t *testing.T) {
	logger := logging.NewTestLogger()
	engine := rewind.NewEngine("pawn", &pose{transform: kinematics.Identity()}, rewind.DefaultConfig(), rewind.WithLogger(logger))
	rig := NewRig(DefaultConfig(), logger)
	detach := rig.Attach(engine)

	engine.Tick(1.0 / 30.0)
	engine.BeginManipulation()
	if !rig.Overview() || rig.ArmLength() != 2000 {
		t.Fatalf("expected overview boom, got overview=%v arm=%v", rig.Overview(), rig.ArmLength())
	}
	engine.EndManipulation()
	if rig.Overview() || rig.ArmLength() != 500 {
		t.Fatalf("expected follow boom, got overview=%v arm=%v", rig.Overview(), rig.ArmLength())
	}

	detach()
	engine.BeginManipulation()
	if rig.Overview() {
		t.Fatal("detached rig must not react to events")
	}
}

func TestLookOnlyAppliesInOverview(t *testing.T) {
	rig := NewRig(DefaultConfig(), logging.NewTestLogger())
	if rig.Look(10, 10) {
		t.Fatal("expected look to be ignored while following")
	}

	rig.enterOverview()
	rig.Look(30, 10)
	yaw, pitch := rig.Orientation()
	if yaw != 30 || pitch != -25 {
		t.Fatalf("expected yaw 30 pitch -25, got %v %v", yaw, pitch)
	}
	rig.Look(0, 500)
	if _, pitch := rig.Orientation(); pitch != -80 {
		t.Fatalf("expected pitch clamp at -80, got %v", pitch)
	}
	rig.Look(0, -1000)
	if _, pitch := rig.Orientation(); pitch != 80 {
		t.Fatalf("expected pitch clamp at 80, got %v", pitch)
	}
}

func TestViewTrailsTargetHeading(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultPitchDeg = 0
	rig := NewRig(cfg, logging.NewTestLogger())

	target := kinematics.At(mgl64.Vec3{100, 0, 0}).WithHeading(90)
	view := rig.View(target)
	if !kinematics.Vec3Near(view.Eye, mgl64.Vec3{100, -500, 0}, 1e-9) {
		t.Fatalf("expected eye behind the target, got %v", view.Eye)
	}
	if math.Abs(view.YawDeg-90) > 1e-9 || view.Overview {
		t.Fatalf("unexpected view %+v", view)
	}
}
