package sdk

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the different event kinds in a run's stream.
type EventType string

const (
	EventRunStarted             EventType = "run.started"
	EventNodeStarted            EventType = "node.started"
	EventNodeRetrying           EventType = "node.retrying"
	EventNodeSucceeded          EventType = "node.succeeded"
	EventNodeFailed             EventType = "node.failed"
	EventBranchDecision         EventType = "branch.decision"
	EventAgentIteration         EventType = "agent.iteration"
	EventRecursionRound         EventType = "recursion.round"
	EventHumanApprovalRequested EventType = "human.approval_requested"
	EventHumanApprovalResolved  EventType = "human.approval_resolved"
	EventBudgetWarning          EventType = "budget.warning"
	EventRunCompleted           EventType = "run.completed"
	EventRunFailed              EventType = "run.failed"
	EventRunCanceled            EventType = "run.canceled"
)

// Terminal reports whether this kind closes a run's stream.
func (t EventType) Terminal() bool {
	switch t {
	case EventRunCompleted, EventRunFailed, EventRunCanceled:
		return true
	default:
		return false
	}
}

// Event is an ordered record of a run state transition. Seq is strictly
// increasing within a run; cross-run ordering is unspecified.
type Event struct {
	EventID     uuid.UUID              `json:"event_id"`
	ExecutionID string                 `json:"execution_id"`
	Seq         int64                  `json:"seq"`
	Timestamp   time.Time              `json:"ts"`
	Kind        EventType              `json:"kind"`
	NodeID      string                 `json:"node_id,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}
