package fsm

import "github.com/librescoot/librefsm"

// Actions is implemented by the command logic task. Entry actions publish
// the vehicle state snapshot; the rearm guard gates the only way out of
// Fault.
type Actions interface {
	EnterManual(c *librefsm.Context) error
	EnterAutomatic(c *librefsm.Context) error
	EnterFault(c *librefsm.Context) error

	// CanRearm is true only after a normalized event has been observed
	// while in Fault and the operator is requesting rearm. A normalized
	// event alone never exits Fault.
	CanRearm(c *librefsm.Context) bool
}
