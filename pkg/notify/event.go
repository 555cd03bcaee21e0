// Package notify is the fan-out notification gateway of spec.md §4.H: a
// best-effort dispatcher of typed release-engineering events to registered
// sinks. Delivery failures are logged and never propagate to the caller,
// mirroring the teacher's nil-safe pkg/slack.Service.
package notify

import "time"

// Kind enumerates the event types emitted by the core services.
type Kind string

const (
	ApprovalNeeded     Kind = "approval_needed"
	ApprovalReceived   Kind = "approval_received"
	ApprovalRejected   Kind = "approval_rejected"
	Deployed           Kind = "deployed"
	RegressionDetected Kind = "regression_detected"
	Rollback           Kind = "rollback"
	RollbackComplete   Kind = "rollback_complete"
)

// Event is the payload fanned out to every registered sink. Fields beyond
// Kind/AgentID are populated as relevant to the event and may be zero.
type Event struct {
	Kind         Kind
	AgentID      string
	VersionID    string
	DeploymentID string
	RequestID    string
	ActorID      string
	Reason       string
	Severity     string
	OccurredAt   time.Time
}
