package core

import (
	"testing"
	"time"

	"haul-truck-service/internal/blackboard"
	"haul-truck-service/internal/config"
	"haul-truck-service/internal/notifier"
	"haul-truck-service/internal/ring"
	"haul-truck-service/internal/types"
)

func newTestController() (*NavController, *blackboard.Blackboard, *syncQueue[types.NavSetpoints], *notifier.Notifier) {
	bb := blackboard.New()
	setpoints := newSyncQueue[types.NavSetpoints](8, ring.Overwrite)
	events := notifier.New()
	c := NewNavController(config.Default().Controller, bb, setpoints, events.Subscribe(), testLogger())
	return c, bb, setpoints, events
}

func setPose(bb *blackboard.Blackboard, pose types.FilteredPose) {
	bb.Lock()
	bb.SetFilteredPose(pose)
	bb.Unlock()
	bb.NotifyAll()
}

func readOutput(bb *blackboard.Blackboard) types.ControllerOutput {
	bb.Lock()
	defer bb.Unlock()
	return bb.ControllerOutput()
}

func TestSurrogateAccelBeforeVelocityEstimate(t *testing.T) {
	c, bb, _, _ := newTestController()
	setPose(bb, types.FilteredPose{Heading: 0, Stamp: time.Now()})

	out := c.step(types.NavSetpoints{Velocity: 2.0, Heading: 0})
	if out.Accel != 30 {
		t.Errorf("Expected surrogate accel 30, got %d", out.Accel)
	}

	out = c.step(types.NavSetpoints{Velocity: 0, Heading: 0})
	if out.Accel != -30 {
		t.Errorf("Expected surrogate accel -30, got %d", out.Accel)
	}
}

func TestVelocityEstimateFromPoseDeltas(t *testing.T) {
	c, bb, _, _ := newTestController()
	base := time.Now()

	setPose(bb, types.FilteredPose{X: 0, Y: 0, Stamp: base})
	c.step(types.NavSetpoints{Velocity: 2.0})

	// 1.0 units in 0.5 s: estimated velocity 2.0, matching the setpoint,
	// so the proportional command is zero.
	setPose(bb, types.FilteredPose{X: 1, Y: 0, Stamp: base.Add(500 * time.Millisecond)})
	out := c.step(types.NavSetpoints{Velocity: 2.0})

	if !c.haveVel {
		t.Fatal("Expected a velocity estimate after two snapshots")
	}
	if c.estVel < 1.99 || c.estVel > 2.01 {
		t.Fatalf("Expected estimated velocity ~2.0, got %v", c.estVel)
	}
	if out.Accel != 0 {
		t.Errorf("Expected zero accel at matched velocity, got %d", out.Accel)
	}
}

func TestAccelClamped(t *testing.T) {
	c, bb, _, _ := newTestController()
	base := time.Now()

	setPose(bb, types.FilteredPose{X: 0, Stamp: base})
	c.step(types.NavSetpoints{})
	setPose(bb, types.FilteredPose{X: 100, Stamp: base.Add(time.Second)})

	// Estimated velocity 100 against setpoint 0: raw command far below
	// -100 must clamp.
	out := c.step(types.NavSetpoints{Velocity: 0})
	if out.Accel != -100 {
		t.Errorf("Expected accel clamped to -100, got %d", out.Accel)
	}
}

func TestSteerProportionalAndWrapped(t *testing.T) {
	c, bb, _, _ := newTestController()
	setPose(bb, types.FilteredPose{Heading: 170, Stamp: time.Now()})

	// Setpoint -170: the short way around is +20 degrees, not -340.
	out := c.step(types.NavSetpoints{Velocity: 0, Heading: -170})
	if out.Steer != 20 {
		t.Errorf("Expected wrapped steer 20, got %d", out.Steer)
	}
}

func TestFaultLatchZeroesOutput(t *testing.T) {
	c, bb, setpoints, events := newTestController()
	setPose(bb, types.FilteredPose{Stamp: time.Now()})

	go c.RunEvents()
	go c.Run()

	events.Fire(types.ElectricalFault)

	deadline := time.Now().Add(time.Second)
	for !c.InFault() {
		if time.Now().After(deadline) {
			t.Fatal("Fault never latched")
		}
		time.Sleep(time.Millisecond)
	}

	// A fresh setpoint while latched still produces (0,0).
	setpoints.Push(types.NavSetpoints{Velocity: 2.0, Heading: 90})
	time.Sleep(50 * time.Millisecond)

	out := readOutput(bb)
	if out.Accel != 0 || out.Steer != 0 {
		t.Errorf("Expected (0,0) while latched, got %+v", out)
	}

	setpoints.Close()
	events.Close()
}

func TestNormalizedDoesNotClearLatch(t *testing.T) {
	c, _, setpoints, events := newTestController()

	go c.RunEvents()

	events.Fire(types.ThermalFault)
	events.Fire(types.Normalized)
	time.Sleep(50 * time.Millisecond)

	if !c.InFault() {
		t.Error("Expected latch to survive normalized; only rearm clears it")
	}

	c.ClearFault()
	if c.InFault() {
		t.Error("Expected latch cleared by rearm")
	}

	setpoints.Close()
	events.Close()
}

func TestThermalWarningDoesNotLatch(t *testing.T) {
	c, _, setpoints, events := newTestController()

	go c.RunEvents()

	events.Fire(types.ThermalWarning)
	time.Sleep(50 * time.Millisecond)

	if c.InFault() {
		t.Error("Thermal warning must not latch the fault flag")
	}

	setpoints.Close()
	events.Close()
}
