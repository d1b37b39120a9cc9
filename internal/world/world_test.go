package world

import (
	"fmt"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/kinematics"
	"driftpursuit/rewind/internal/logging"
)

func newTestWorld(t *testing.T, opts ...Option) *World {
	t.Helper()
	next := 0
	ids := WithIDSource(func() string {
		next++
		return fmt.Sprintf("body-%d", next)
	})
	return New(append([]Option{ids, WithLogger(logging.NewTestLogger())}, opts...)...)
}

func TestSpawnIsAppliedAtStepBoundary(t *testing.T) {
	w := newTestWorld(t)
	body := w.SpawnDrifter()
	if w.Len() != 0 {
		t.Fatal("expected spawn to be queued until the next step")
	}

	diff := w.Advance(0.1)
	if len(diff.Spawned) != 1 || diff.Spawned[0] != body {
		t.Fatalf("expected spawned body in diff, got %+v", diff)
	}
	if _, ok := w.Body("body-1"); !ok {
		t.Fatal("expected body to be addressable after the step")
	}

	if !w.Despawn(body.ID()) {
		t.Fatal("expected despawn to be accepted")
	}
	diff = w.Advance(0.1)
	if len(diff.Despawned) != 1 || w.Len() != 0 {
		t.Fatalf("expected body removal, got diff=%+v len=%d", diff, w.Len())
	}
	if w.Despawn(body.ID()) {
		t.Fatal("expected unknown id to be rejected")
	}
}

func TestSeedMakesPopulationDeterministic(t *testing.T) {
	a := newTestWorld(t, WithSeed(7))
	b := newTestWorld(t, WithSeed(7))
	a.Populate(3)
	b.Populate(3)
	a.Advance(0.5)
	b.Advance(0.5)

	for i, body := range a.bodies {
		if !body.Transform().ApproxEqual(b.bodies[i].Transform(), 1e-12) {
			t.Fatalf("body %d diverged between identical seeds", i)
		}
	}
}

func TestManipulatedBodyKeepsWrittenPose(t *testing.T) {
	w := newTestWorld(t)
	body := w.SpawnDrifter()
	w.Advance(0)

	pose := kinematics.At(mgl64.Vec3{1, 2, 3}).WithHeading(45)
	body.SetManipulated(true)
	body.SetTransform(pose)
	w.Advance(0.5)
	if !body.Transform().ApproxEqual(pose, 1e-12) {
		t.Fatalf("manipulated body moved to %+v", body.Transform())
	}
	if math.Abs(body.Heading()-45) > 1e-9 {
		t.Fatalf("expected heading derived from the written pose, got %v", body.Heading())
	}

	body.SetManipulated(false)
	w.Advance(0.5)
	if body.Transform().ApproxEqual(pose, 1e-6) {
		t.Fatal("expected body to move once released")
	}
}

func TestAnimationPauseFreezesPhase(t *testing.T) {
	w := newTestWorld(t)
	body := w.SpawnDrifter()
	w.Advance(0.25)
	body.SetAnimationPaused(true)
	w.Advance(0.25)
	if body.AnimationPhase() != 0.25 {
		t.Fatalf("expected paused phase 0.25, got %v", body.AnimationPhase())
	}
	body.SetAnimationPaused(false)
	w.Advance(0.25)
	if body.AnimationPhase() != 0.5 {
		t.Fatalf("expected resumed phase 0.5, got %v", body.AnimationPhase())
	}
}

func TestDriftersStayInsideBounds(t *testing.T) {
	w := newTestWorld(t, WithBounds(50), WithSeed(3))
	w.Populate(4)
	for i := 0; i < 600; i++ {
		w.Advance(1.0 / 60.0)
	}
	for body := range w.Bodies() {
		pos := body.Transform().Position
		if math.Abs(pos.X()) > 50 || math.Abs(pos.Y()) > 50 {
			t.Fatalf("body %s escaped to %v", body.ID(), pos)
		}
	}
}

func TestPawnMovesAlongHeading(t *testing.T) {
	w := newTestWorld(t)
	pawn := w.SpawnPawn(kinematics.Identity().WithHeading(90))
	w.Advance(0)

	pawn.Move(1, 0)
	w.Advance(0.5)
	pos := pawn.Body().Transform().Position
	if !kinematics.Vec3Near(pos, mgl64.Vec3{0, 300, 0}, 1e-6) {
		t.Fatalf("expected pawn to walk along +y, got %v", pos)
	}
}

func TestPawnJumpAndLand(t *testing.T) {
	w := newTestWorld(t)
	pawn := w.SpawnPawn(kinematics.Identity())
	w.Advance(0)

	if !pawn.Jump() {
		t.Fatal("expected grounded pawn to jump")
	}
	w.Advance(0.1)
	if pawn.Body().Mode() != history.MovementFalling || pawn.Body().Transform().Position.Z() <= 0 {
		t.Fatalf("expected airborne pawn, got mode=%v z=%v", pawn.Body().Mode(), pawn.Body().Transform().Position.Z())
	}
	if pawn.Jump() {
		t.Fatal("expected airborne jump to be ignored")
	}
	for i := 0; i < 120; i++ {
		w.Advance(1.0 / 60.0)
	}
	if pawn.Body().Mode() != history.MovementWalking || pawn.Body().Transform().Position.Z() != 0 {
		t.Fatalf("expected pawn to land, got mode=%v z=%v", pawn.Body().Mode(), pawn.Body().Transform().Position.Z())
	}
}

func TestPawnInputIgnoredWhileManipulated(t *testing.T) {
	w := newTestWorld(t)
	pawn := w.SpawnPawn(kinematics.Identity())
	w.Advance(0)
	pawn.Body().SetManipulated(true)

	if pawn.Move(1, 0) {
		t.Fatal("expected move to be ignored while manipulated")
	}
	if pawn.Jump() {
		t.Fatal("expected jump to be ignored while manipulated")
	}
	if pawn.Turn(30) {
		t.Fatal("expected turn to be ignored while manipulated")
	}

	pawn.Body().SetManipulated(false)
	w.Advance(0.5)
	if pos := pawn.Body().Transform().Position; !kinematics.Vec3Near(pos, mgl64.Vec3{}, 1e-12) {
		t.Fatalf("ignored input must not move the pawn, got %v", pos)
	}
}
