package fsm

import "github.com/librescoot/librefsm"

// Arbitration modes
const (
	StateManual    librefsm.StateID = "manual"
	StateAutomatic librefsm.StateID = "automatic"
	StateFault     librefsm.StateID = "fault"
)

// Mode events
const (
	// Operator command edges (from the blackboard's operator mailbox)
	EvAutoOn   librefsm.EventID = "auto-on"
	EvManualOn librefsm.EventID = "manual-on"
	EvRearm    librefsm.EventID = "rearm"

	// Fault events (from the event notifier)
	EvFaultDetected librefsm.EventID = "fault-detected"
)
