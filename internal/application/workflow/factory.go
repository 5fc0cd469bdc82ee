package workflow

import (
	domainwf "github.com/garyjia/expense-flow/internal/domain/workflow"
)

// BuildExpenseStateMachine creates a state machine for the expense approval lifecycle
func BuildExpenseStateMachine(initialState domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StateDraft).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted)

	builder.Configure(domainwf.StateSubmitted).
		Permit(domainwf.TriggerStartProcessing, domainwf.StateProcessing).
		Permit(domainwf.TriggerApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateProcessing).
		Permit(domainwf.TriggerApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// settlement is the only way out of a terminal state
	builder.Configure(domainwf.StateApproved).
		Permit(domainwf.TriggerSettle, domainwf.StatePaid)

	return builder.Build(initialState)
}
