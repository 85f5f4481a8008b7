package tasks

import "fmt"

// Status is the workflow state of a coding task. Transitions follow a fixed
// table; anything not listed is a bug.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusAssessing   Status = "ASSESSING"
	StatusExecuting   Status = "EXECUTING"
	StatusQualityGate Status = "QUALITY_GATE"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusFailed      Status = "FAILED"
	StatusCompleted   Status = "COMPLETED"
)

// statusTransitions defines the allowed workflow transitions.
// QUALITY_GATE -> EXECUTING is the retry edge.
var statusTransitions = map[Status][]Status{
	StatusPending:     {StatusAssessing, StatusFailed},
	StatusAssessing:   {StatusExecuting, StatusFailed},
	StatusExecuting:   {StatusQualityGate, StatusFailed},
	StatusQualityGate: {StatusExecuting, StatusApproved, StatusRejected, StatusFailed},
	StatusApproved:    {StatusCompleted},
	StatusRejected:    {StatusCompleted},
	StatusFailed:      {StatusCompleted},
	StatusCompleted:   {},
}

// IsValidTransition reports whether from -> to is an allowed workflow edge.
func IsValidTransition(from, to Status) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further work. COMPLETED is
// the only fully terminal state; APPROVED, REJECTED and FAILED still pass
// through finalization.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// IsOutcome reports whether the status is a workflow outcome awaiting
// finalization.
func (s Status) IsOutcome() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusFailed
}

// ValidateTransition returns an error describing an illegal transition.
func ValidateTransition(from, to Status) error {
	if !IsValidTransition(from, to) {
		return fmt.Errorf("invalid status transition: %s -> %s", from, to)
	}
	return nil
}
