package fsm

import "github.com/librescoot/librefsm"

// NewDefinition creates the mode machine. Manual is initial because the
// operator mailbox defaults to manual=true; the command logic sets the
// machine straight to Automatic at start-up when the mailbox says otherwise.
//
// Fault is absorbing except for the guarded rearm transition: entering it
// is allowed from both operating modes, and repeated fault events while
// already in Fault are ignored by the machine.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateManual,
			librefsm.WithOnEnter(actions.EnterManual),
		).
		State(StateAutomatic,
			librefsm.WithOnEnter(actions.EnterAutomatic),
		).
		State(StateFault,
			librefsm.WithOnEnter(actions.EnterFault),
		).
		Transition(StateManual, EvAutoOn, StateAutomatic).
		Transition(StateAutomatic, EvManualOn, StateManual).
		Transition(StateManual, EvFaultDetected, StateFault).
		Transition(StateAutomatic, EvFaultDetected, StateFault).
		Transition(StateFault, EvRearm, StateManual,
			librefsm.WithGuard(actions.CanRearm),
		).
		Initial(StateManual)
}
