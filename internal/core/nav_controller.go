package core

import (
	"math"

	uatomic "go.uber.org/atomic"

	"haul-truck-service/internal/blackboard"
	"haul-truck-service/internal/config"
	"haul-truck-service/internal/logger"
	"haul-truck-service/internal/notifier"
	"haul-truck-service/internal/types"
)

// NavController is the blocking pull-style controller: it sleeps on the
// setpoint queue, turns each setpoint into an actuator command, and writes
// the result to the blackboard. A companion event goroutine latches the
// fault flag; once latched the controller emits (0,0) until the command
// logic rearms it.
type NavController struct {
	bb        *blackboard.Blackboard
	setpoints *syncQueue[types.NavSetpoints]
	events    *notifier.Consumer
	log       *logger.Logger
	cfg       config.ControllerConfig

	inFault uatomic.Bool

	// Velocity estimation state; only the Run goroutine touches it.
	prevPose types.FilteredPose
	prevSeq  uint64
	estVel   float64
	haveVel  bool
}

func NewNavController(
	cfg config.ControllerConfig,
	bb *blackboard.Blackboard,
	setpoints *syncQueue[types.NavSetpoints],
	events *notifier.Consumer,
	l *logger.Logger,
) *NavController {
	return &NavController{
		bb:        bb,
		setpoints: setpoints,
		events:    events,
		log:       l.WithTag("nav-controller"),
		cfg:       cfg,
	}
}

// Run consumes setpoints until the queue closes.
func (c *NavController) Run() {
	for {
		sp, ok := c.setpoints.PopWait()
		if !ok {
			c.log.Infof("Controller stopped")
			return
		}
		if c.inFault.Load() {
			c.writeOutput(types.ControllerOutput{})
			continue
		}
		c.writeOutput(c.step(sp))
	}
}

func (c *NavController) step(sp types.NavSetpoints) types.ControllerOutput {
	c.bb.Lock()
	pose := c.bb.FilteredPose()
	seq := c.bb.PoseSeq()
	c.bb.Unlock()

	c.updateVelocityEstimate(pose, seq)

	var accel int
	if c.haveVel {
		accel = clampInt(int(math.Round(c.cfg.KpVel*(sp.Velocity-c.estVel))), -100, 100)
	} else {
		// Surrogate until two pose snapshots exist.
		if sp.Velocity > 0.5 {
			accel = 30
		} else {
			accel = -30
		}
	}

	steer := clampInt(int(math.Round(c.cfg.KpAng*wrapAngle(sp.Heading-pose.Heading))), -180, 180)
	return types.ControllerOutput{Accel: accel, Steer: steer}
}

// updateVelocityEstimate derives speed from successive pose snapshots
// (distance over stamp delta). Repeated reads of the same pose keep the
// previous estimate.
func (c *NavController) updateVelocityEstimate(pose types.FilteredPose, seq uint64) {
	if seq == 0 {
		return
	}
	if c.prevSeq == 0 {
		c.prevPose = pose
		c.prevSeq = seq
		return
	}
	if seq == c.prevSeq {
		return
	}
	if dt := pose.Stamp.Sub(c.prevPose.Stamp).Seconds(); dt > 0 {
		c.estVel = math.Hypot(pose.X-c.prevPose.X, pose.Y-c.prevPose.Y) / dt
		c.haveVel = true
	}
	c.prevPose = pose
	c.prevSeq = seq
}

func (c *NavController) writeOutput(out types.ControllerOutput) {
	c.bb.Lock()
	c.bb.SetControllerOutput(out)
	c.bb.Unlock()
	c.bb.NotifyAll()
}

// RunEvents is the companion goroutine blocking on the notifier. Stop
// faults latch; normalized is informational here because only an operator
// rearm may clear the latch.
func (c *NavController) RunEvents() {
	for {
		kind, ok := c.events.Wait()
		if !ok {
			c.log.Infof("Event listener stopped")
			return
		}
		switch {
		case kind.IsStopFault():
			c.inFault.Store(true)
			c.writeOutput(types.ControllerOutput{})
			c.log.Warnf("Fault latched (%s), commands zeroed", kind)
		case kind == types.Normalized:
			c.log.Infof("Normalized received, fault stays latched until rearm")
		case kind == types.ThermalWarning:
			c.log.Warnf("Thermal warning")
		}
	}
}

// ClearFault releases the latch. Called by the command logic on the
// rearm transition out of Fault mode.
func (c *NavController) ClearFault() {
	if c.inFault.CompareAndSwap(true, false) {
		c.log.Infof("Fault latch cleared by rearm")
	}
}

// InFault reports the latch state.
func (c *NavController) InFault() bool {
	return c.inFault.Load()
}
