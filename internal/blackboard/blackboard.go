// Package blackboard holds the last-value mailboxes shared by the six tasks:
// filtered pose, operator commands, vehicle state, navigation setpoints and
// controller output. One mutex and one condition variable cover all five,
// so multi-field snapshots stay consistent and there is no lock-order graph
// to get wrong.
//
// The locking contract is external: callers bracket one or more Get/Set
// calls with Lock/Unlock. Writers call NotifyAll after releasing the mutex;
// waiters call Wait with the mutex held and must re-check their predicate
// on wake.
package blackboard

import (
	"sync"

	"haul-truck-service/internal/guard"
	"haul-truck-service/internal/types"
)

type Blackboard struct {
	mu   sync.Mutex
	cond *sync.Cond

	pose      types.FilteredPose
	poseSeq   uint64
	operator  types.OperatorCommands
	vehicle   types.VehicleState
	setpoints types.NavSetpoints
	output    types.ControllerOutput
}

func New() *Blackboard {
	b := &Blackboard{
		operator: types.DefaultOperatorCommands(),
		vehicle:  types.DefaultVehicleState(),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Lock acquires the blackboard mutex. All Get/Set calls require it held.
func (b *Blackboard) Lock() {
	b.mu.Lock()
	guard.Acquired()
}

// Unlock releases the blackboard mutex.
func (b *Blackboard) Unlock() {
	guard.Released()
	b.mu.Unlock()
}

// Wait atomically releases the mutex, sleeps until NotifyAll, and
// re-acquires. The mutex must be held. Callers re-check their predicate on
// wake; spurious wake-ups are allowed.
func (b *Blackboard) Wait() {
	b.cond.Wait()
}

// NotifyAll wakes every waiter. Call it after releasing the mutex.
func (b *Blackboard) NotifyAll() {
	b.cond.Broadcast()
}

// All Get/Set calls below copy values; no aliasing of internal storage
// escapes the blackboard.

func (b *Blackboard) FilteredPose() types.FilteredPose { return b.pose }

// PoseSeq increments on every pose write, for staleness checks that do not
// want to compare timestamps.
func (b *Blackboard) PoseSeq() uint64 { return b.poseSeq }

func (b *Blackboard) SetFilteredPose(p types.FilteredPose) {
	b.pose = p
	b.poseSeq++
}

func (b *Blackboard) Operator() types.OperatorCommands     { return b.operator }
func (b *Blackboard) SetOperator(c types.OperatorCommands) { b.operator = c }

func (b *Blackboard) VehicleState() types.VehicleState     { return b.vehicle }
func (b *Blackboard) SetVehicleState(s types.VehicleState) { b.vehicle = s }

func (b *Blackboard) NavSetpoints() types.NavSetpoints     { return b.setpoints }
func (b *Blackboard) SetNavSetpoints(s types.NavSetpoints) { b.setpoints = s }

func (b *Blackboard) ControllerOutput() types.ControllerOutput     { return b.output }
func (b *Blackboard) SetControllerOutput(o types.ControllerOutput) { b.output = o }

// Snapshot is the consistent multi-record view the data collector logs.
type Snapshot struct {
	Pose    types.FilteredPose
	PoseSeq uint64
	Vehicle types.VehicleState
	Output  types.ControllerOutput
}

// TakeSnapshot reads pose, vehicle state and controller output under one
// critical section.
func (b *Blackboard) TakeSnapshot() Snapshot {
	b.Lock()
	defer b.Unlock()
	return Snapshot{
		Pose:    b.pose,
		PoseSeq: b.poseSeq,
		Vehicle: b.vehicle,
		Output:  b.output,
	}
}
