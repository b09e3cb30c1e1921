package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// TruckMode is the arbitration mode owned by the command logic task.
type TruckMode string

const (
	ModeManual    TruckMode = "manual"
	ModeAutomatic TruckMode = "automatic"
	ModeFault     TruckMode = "fault"
)

// FaultKind tags events emitted by the fault monitor.
type FaultKind string

const (
	FaultNone       FaultKind = "none"
	ThermalWarning  FaultKind = "thermal-warning"
	ThermalFault    FaultKind = "thermal-fault"
	ElectricalFault FaultKind = "electrical-fault"
	HydraulicFault  FaultKind = "hydraulic-fault"
	SensorTimeout   FaultKind = "sensor-timeout"
	Normalized      FaultKind = "normalized"
)

// IsStopFault reports whether the kind forces a safe stop.
func (k FaultKind) IsStopFault() bool {
	switch k {
	case ThermalFault, ElectricalFault, HydraulicFault, SensorTimeout:
		return true
	}
	return false
}

// FilteredPose is the batched moving-average output of the sensor filter.
// Stamp is the mean wall-clock instant of the batch that produced it.
type FilteredPose struct {
	X           float64
	Y           float64
	Heading     float64
	Temperature float64
	Stamp       time.Time
}

// OperatorCommands mirrors the last command frame received from the local
// operator UI. Without a UI the defaults govern forever.
type OperatorCommands struct {
	Auto   bool    `json:"auto"`
	Manual bool    `json:"manual"`
	Rearm  bool    `json:"rearm"`
	Accel  float64 `json:"accel"`
	Turn   float64 `json:"turn"`
}

// DefaultOperatorCommands returns the no-UI defaults: manual mode, everything
// else zero.
func DefaultOperatorCommands() OperatorCommands {
	return OperatorCommands{Manual: true}
}

// VehicleState is the externally visible truck state. Sole writer is the
// command logic task.
type VehicleState struct {
	Fault     bool
	Automatic bool
}

// DefaultVehicleState returns the power-on state: no fault, automatic.
func DefaultVehicleState() VehicleState {
	return VehicleState{Automatic: true}
}

// NavSetpoints is the route planner's output consumed by the navigation
// controller.
type NavSetpoints struct {
	Velocity float64
	Heading  float64
}

// ControllerOutput is the navigation controller's command, clamped to the
// actuator limits.
type ControllerOutput struct {
	Accel int // [-100, 100]
	Steer int // [-180, 180]
}

// Goal is the route planner's private destination.
type Goal struct {
	X      float64
	Y      float64
	Active bool
}

// TruckID accepts both numeric and string JSON encodings; the simulator has
// published both over time.
type TruckID string

func (t *TruckID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = TruckID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("truck_id is neither string nor number: %s", string(b))
	}
	*t = TruckID(n.String())
	return nil
}

func (t TruckID) String() string { return string(t) }

// RawFrame is one telemetry sample as published by the simulator.
type RawFrame struct {
	TruckID     TruckID `json:"truck_id"`
	PosX        float64 `json:"i_posicao_x"`
	PosY        float64 `json:"i_posicao_y"`
	Heading     float64 `json:"i_angulo_x"`
	Temperature float64 `json:"i_temperatura"`
}

// GoalMessage is the fleet manager's destination payload.
type GoalMessage struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PoseReport is published back to the fleet manager once per planner tick.
type PoseReport struct {
	TruckID string  `json:"truck_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Ang     float64 `json:"ang"`
}
