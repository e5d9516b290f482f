package conversation

import (
	"github.com/qmuntal/stateless"
)

// Lifecycle triggers fired as parsed events reach a message.
var (
	triggerStatus stateless.Trigger = "StatusReceived"
	triggerFinal  stateless.Trigger = "FinalReceived"
	triggerError  stateless.Trigger = "ErrorReceived"
	triggerCancel stateless.Trigger = "CancelRequested"
)

// newLifecycle builds the per-message state machine. Terminal states ignore
// every trigger: the server may legitimately race a closing status past the
// terminal event, and a no-op is safer than raising.
func newLifecycle() *stateless.StateMachine {
	m := stateless.NewStateMachine(StatePending)

	m.Configure(StatePending).
		Permit(triggerStatus, StateStreaming).
		Permit(triggerFinal, StateResolved).
		Permit(triggerError, StateFailed).
		Permit(triggerCancel, StateFailed)

	m.Configure(StateStreaming).
		PermitReentry(triggerStatus).
		Permit(triggerFinal, StateResolved).
		Permit(triggerError, StateFailed).
		Permit(triggerCancel, StateFailed)

	m.Configure(StateResolved).
		Ignore(triggerStatus).
		Ignore(triggerFinal).
		Ignore(triggerError).
		Ignore(triggerCancel)

	m.Configure(StateFailed).
		Ignore(triggerStatus).
		Ignore(triggerFinal).
		Ignore(triggerError).
		Ignore(triggerCancel)

	return m
}
