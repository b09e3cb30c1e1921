package core

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/librescoot/librefsm"
	uatomic "go.uber.org/atomic"

	"haul-truck-service/internal/blackboard"
	"haul-truck-service/internal/config"
	"haul-truck-service/internal/fsm"
	"haul-truck-service/internal/logger"
	"haul-truck-service/internal/messaging"
	"haul-truck-service/internal/types"
)

// Ensure CommandLogic implements fsm.Actions
var _ fsm.Actions = (*CommandLogic)(nil)

// faultClearer is what the command logic needs from the navigation
// controller: the ability to release its fault latch on rearm.
type faultClearer interface {
	ClearFault()
}

// CommandLogic is the mode arbiter and the only publisher of actuator
// commands. It polls the notifier every tick, drives the mode machine, and
// emits the final throttle and steering to the bus.
type CommandLogic struct {
	id     string
	topics messaging.Topics
	bus    Bus
	bb     *blackboard.Blackboard
	events eventPoller
	nav    faultClearer
	log    *logger.Logger
	cfg    config.CommandConfig

	machine *librefsm.Machine

	mu             sync.Mutex
	normalizedSeen bool

	// lastEvent shadows the most recent fault kind for the data
	// collector, which must not consume notifier events itself.
	lastEvent *uatomic.String

	// Tick-goroutine-local state.
	prevOp  types.OperatorCommands
	lastPub types.ControllerOutput
	havePub bool
}

// eventPoller is the non-blocking side of a notifier consumer.
type eventPoller interface {
	Poll() types.FaultKind
}

func NewCommandLogic(
	id string,
	cfg config.CommandConfig,
	bus Bus,
	bb *blackboard.Blackboard,
	events eventPoller,
	nav faultClearer,
	l *logger.Logger,
) *CommandLogic {
	return &CommandLogic{
		id:        id,
		topics:    messaging.NewTopics(id),
		bus:       bus,
		bb:        bb,
		events:    events,
		nav:       nav,
		log:       l.WithTag("command-logic"),
		cfg:       cfg,
		lastEvent: uatomic.NewString(string(types.FaultNone)),
		prevOp:    types.DefaultOperatorCommands(),
	}
}

// LastEvent exposes the fault-kind shadow for the data collector.
func (c *CommandLogic) LastEvent() *uatomic.String { return c.lastEvent }

// InitFSM builds and starts the mode machine. Manual is the initial mode
// unless the operator mailbox already selects automatic.
func (c *CommandLogic) InitFSM(ctx context.Context) error {
	def := fsm.NewDefinition(c)
	machine, err := def.Build()
	if err != nil {
		return err
	}
	c.machine = machine

	c.machine.OnStateChange(func(from, to librefsm.StateID) {
		c.log.Infof("Mode transition: %s -> %s", from, to)
		if from == fsm.StateFault && to == fsm.StateManual {
			// Rearm path: release the controller latch and spend the
			// normalized observation.
			c.mu.Lock()
			c.normalizedSeen = false
			c.mu.Unlock()
			c.nav.ClearFault()
		}
	})

	if err := c.machine.Start(ctx); err != nil {
		return err
	}

	c.bb.Lock()
	op := c.bb.Operator()
	c.bb.Unlock()
	if op.Auto && !op.Manual {
		if err := c.machine.SetState(fsm.StateAutomatic); err != nil {
			return err
		}
	}
	return nil
}

// Mode returns the current arbitration mode.
func (c *CommandLogic) Mode() types.TruckMode {
	switch c.machine.CurrentState() {
	case fsm.StateAutomatic:
		return types.ModeAutomatic
	case fsm.StateFault:
		return types.ModeFault
	default:
		return types.ModeManual
	}
}

// Run ticks until ctx is cancelled.
func (c *CommandLogic) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Infof("Command logic stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *CommandLogic) tick(ctx context.Context) {
	c.pollEvents()

	c.bb.Lock()
	op := c.bb.Operator()
	out := c.bb.ControllerOutput()
	c.bb.Unlock()

	c.applyOperatorEdges(op)

	cmd := c.decide(op, out)
	c.publish(ctx, cmd)
	c.writeVehicleState()
}

// pollEvents drains every pending fault event. Stop faults enter Fault
// mode; normalized only arms the rearm guard; warnings pass through to the
// shadow untouched.
func (c *CommandLogic) pollEvents() {
	for {
		kind := c.events.Poll()
		if kind == types.FaultNone {
			return
		}
		c.lastEvent.Store(string(kind))

		switch {
		case kind.IsStopFault():
			c.mu.Lock()
			c.normalizedSeen = false
			c.mu.Unlock()
			c.sendEvent(fsm.EvFaultDetected)
			c.log.Warnf("Fault event %s, entering fault mode", kind)
		case kind == types.Normalized:
			c.mu.Lock()
			c.normalizedSeen = true
			c.mu.Unlock()
			c.log.Infof("Normalized observed; rearm now possible")
		}
	}
}

// applyOperatorEdges turns operator command edges into mode events. In
// Fault only a rearm rising edge matters; the guard checks that a
// normalized event arrived first.
func (c *CommandLogic) applyOperatorEdges(op types.OperatorCommands) {
	prev := c.prevOp
	c.prevOp = op

	if c.Mode() == types.ModeFault {
		if op.Rearm && !prev.Rearm {
			c.sendEvent(fsm.EvRearm)
		}
		return
	}
	if op.Auto && !prev.Auto {
		c.sendEvent(fsm.EvAutoOn)
	}
	if op.Manual && !prev.Manual {
		c.sendEvent(fsm.EvManualOn)
	}
}

// decide chooses the emitted command for this tick. Fault snaps to (0,0);
// automatic forwards the controller output; manual derives the target from
// the operator and slews from the last published command so leaving
// automatic is bumpless.
func (c *CommandLogic) decide(op types.OperatorCommands, out types.ControllerOutput) types.ControllerOutput {
	var cmd types.ControllerOutput

	switch c.Mode() {
	case types.ModeFault:
		cmd = types.ControllerOutput{}
	case types.ModeAutomatic:
		cmd = types.ControllerOutput{
			Accel: clampInt(out.Accel, -100, 100),
			Steer: clampInt(out.Steer, -180, 180),
		}
	default:
		target := types.ControllerOutput{
			Accel: clampInt(int(math.Round(op.Accel)), -100, 100),
			Steer: clampInt(int(math.Round(op.Turn)), -180, 180),
		}
		if c.havePub {
			cmd = types.ControllerOutput{
				Accel: stepToward(c.lastPub.Accel, target.Accel, c.cfg.AccelSlew),
				Steer: stepToward(c.lastPub.Steer, target.Steer, c.cfg.SteerSlew),
			}
		} else {
			cmd = target
		}
	}

	c.lastPub = cmd
	c.havePub = true
	return cmd
}

func (c *CommandLogic) publish(ctx context.Context, cmd types.ControllerOutput) {
	if err := c.bus.Publish(ctx, c.topics.Acceleration(), 1, []byte(strconv.Itoa(cmd.Accel))); err != nil {
		c.log.Warnf("Publishing acceleration: %v", err)
	}
	if err := c.bus.Publish(ctx, c.topics.Steering(), 1, []byte(strconv.Itoa(cmd.Steer))); err != nil {
		c.log.Warnf("Publishing steering: %v", err)
	}
}

func (c *CommandLogic) writeVehicleState() {
	c.writeModeState(c.Mode())
}

func (c *CommandLogic) sendEvent(ev librefsm.EventID) {
	if err := c.machine.SendSync(librefsm.Event{ID: ev}); err != nil {
		c.log.Debugf("Event %s not applied: %v", ev, err)
	}
}

// === fsm.Actions ===

func (c *CommandLogic) EnterManual(_ *librefsm.Context) error {
	c.writeModeState(types.ModeManual)
	return nil
}

func (c *CommandLogic) EnterAutomatic(_ *librefsm.Context) error {
	c.writeModeState(types.ModeAutomatic)
	return nil
}

func (c *CommandLogic) EnterFault(_ *librefsm.Context) error {
	c.writeModeState(types.ModeFault)
	return nil
}

// CanRearm gates the only exit from Fault: the operator asked for rearm
// after a normalized event arrived.
func (c *CommandLogic) CanRearm(_ *librefsm.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.normalizedSeen
}

func (c *CommandLogic) writeModeState(mode types.TruckMode) {
	state := types.VehicleState{
		Fault:     mode == types.ModeFault,
		Automatic: mode == types.ModeAutomatic,
	}
	c.bb.Lock()
	c.bb.SetVehicleState(state)
	c.bb.Unlock()
	c.bb.NotifyAll()
}
