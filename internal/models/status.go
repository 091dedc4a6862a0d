package models

const (
	StrategyManual    = "manual"
	StrategyPublished = "published"
	StrategyAuto      = "auto"
)

const (
	SignalOpenDetected         = "open_detected"
	SignalClosedDetected       = "closed_detected"
	SignalTimeExtracted        = "time_extracted"
	SignalError                = "error"
	SignalRegistrationsCreated = "registrations_created"
)

type PlanStatus string

const (
	PlanDraft      PlanStatus = "draft"
	PlanPending    PlanStatus = "pending"
	PlanScheduled  PlanStatus = "scheduled"
	PlanMonitoring PlanStatus = "monitoring"
	PlanExecuting  PlanStatus = "executing"
	PlanActive     PlanStatus = "active"
	PlanCompleted  PlanStatus = "completed"
	PlanFailed     PlanStatus = "failed"
)

var planOrder = map[PlanStatus]int{
	PlanDraft:      0,
	PlanPending:    1,
	PlanScheduled:  2,
	PlanMonitoring: 3,
	PlanExecuting:  4,
	PlanActive:     5,
	PlanCompleted:  6,
}

func (s PlanStatus) Valid() bool {
	if s == PlanFailed {
		return true
	}
	_, ok := planOrder[s]
	return ok
}

// CanTransition allows strictly forward moves, a move to failed from any
// non-terminal status, and a reset from failed back to draft.
func (s PlanStatus) CanTransition(to PlanStatus) bool {
	if !s.Valid() || !to.Valid() || s == to {
		return false
	}
	if to == PlanFailed {
		return s != PlanCompleted
	}
	if s == PlanFailed {
		return to == PlanDraft
	}
	return planOrder[to] > planOrder[s]
}
