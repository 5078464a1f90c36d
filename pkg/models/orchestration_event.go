package models

import "time"

// OrchestrationEventType enumerates events emitted while a request runs.
type OrchestrationEventType string

const (
	// EventPlanStatus signals a plan status change.
	EventPlanStatus OrchestrationEventType = "plan-status"

	// EventStepCompleted signals a step reaching DONE or FAILED.
	EventStepCompleted OrchestrationEventType = "step-completed"

	// EventFinalAnswer carries the final answer for the request.
	EventFinalAnswer OrchestrationEventType = "final-answer"
)

// OrchestrationEvent is a structured notification published on the internal
// bus while the runner drives a task context. Consumers subscribe and render.
type OrchestrationEvent struct {
	// Type discriminates the event payload.
	Type OrchestrationEventType `json:"type"`

	// ContextID identifies the owning task context.
	ContextID string `json:"context_id"`

	// PlanID identifies the plan the event concerns, if any.
	PlanID string `json:"plan_id,omitempty"`

	// PlanStatus is set for plan-status events.
	PlanStatus PlanStatus `json:"plan_status,omitempty"`

	// Step is set for step-completed events.
	Step *PlanStep `json:"step,omitempty"`

	// Answer is set for final-answer events.
	Answer string `json:"answer,omitempty"`

	// NeedsInput flags answers produced by an Ask tool result.
	NeedsInput bool `json:"needs_input,omitempty"`

	// Time is when the event was emitted.
	Time time.Time `json:"time"`

	// Sequence orders events within one context monotonically.
	Sequence uint64 `json:"sequence"`
}
