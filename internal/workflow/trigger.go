package workflow

// Trigger is an event that can cause a document state transition.
type Trigger string

const (
	// Contract triggers.
	TriggerActivate   Trigger = "ACTIVATE"
	TriggerDeactivate Trigger = "DEACTIVATE"
	TriggerExpire     Trigger = "EXPIRE"
	TriggerSendReview Trigger = "SEND_REVIEW"

	// Invoice triggers.
	TriggerReconcile Trigger = "RECONCILE"
	TriggerFlag      Trigger = "FLAG"
	TriggerApprove   Trigger = "APPROVE"
	TriggerReject    Trigger = "REJECT"
)

// String returns the string representation of the trigger.
func (t Trigger) String() string {
	return string(t)
}
