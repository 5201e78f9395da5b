package workflow

// Transition tables for the two document types. Status strings stored on
// the entities map 1:1 onto these states, so explicit status-change
// operations validate against the machine instead of comparing strings.

func contractBuilder() *Builder {
	b := NewBuilder()
	b.Permit(StateNeedsReview, TriggerActivate, StateActive)
	b.Permit(StateInactive, TriggerActivate, StateActive)
	b.Permit(StateActive, TriggerDeactivate, StateInactive)
	b.Permit(StateActive, TriggerExpire, StateExpired)
	b.Permit(StateActive, TriggerSendReview, StateNeedsReview)
	return b
}

func invoiceBuilder() *Builder {
	b := NewBuilder()
	b.Permit(StatePending, TriggerReconcile, StateReconciled)
	b.Permit(StatePending, TriggerFlag, StateFlagged)
	b.Permit(StateReconciled, TriggerApprove, StateApproved)
	b.Permit(StateReconciled, TriggerReject, StateRejected)
	b.Permit(StateFlagged, TriggerApprove, StateApproved)
	b.Permit(StateFlagged, TriggerReject, StateRejected)
	return b
}

// NewContractMachine builds a contract lifecycle machine at initial.
func NewContractMachine(initial State) (*Machine, error) {
	return contractBuilder().Build(initial)
}

// NewInvoiceMachine builds an invoice lifecycle machine at initial.
func NewInvoiceMachine(initial State) (*Machine, error) {
	return invoiceBuilder().Build(initial)
}

// ContractCanFire validates a contract status change without mutating anything.
func ContractCanFire(from State, trigger Trigger) bool {
	m, err := NewContractMachine(from)
	if err != nil {
		return false
	}
	return m.CanFire(trigger)
}

// InvoiceCanFire validates an invoice status change without mutating anything.
func InvoiceCanFire(from State, trigger Trigger) bool {
	m, err := NewInvoiceMachine(from)
	if err != nil {
		return false
	}
	return m.CanFire(trigger)
}
