package models

import (
	"strings"
	"time"
)

// PlanStatus represents the lifecycle state of a plan.
type PlanStatus string

const (
	PlanStatusCreated   PlanStatus = "CREATED"
	PlanStatusRunning   PlanStatus = "RUNNING"
	PlanStatusCompleted PlanStatus = "COMPLETED"
	PlanStatusFailed    PlanStatus = "FAILED"
)

// IsTerminal reports whether the plan can no longer change.
func (s PlanStatus) IsTerminal() bool {
	return s == PlanStatusCompleted || s == PlanStatusFailed
}

// Plan is a single attempt to satisfy a user request. It owns an ordered
// list of steps produced by the planner and driven by the executor.
// Once the plan reaches a terminal status its steps are immutable.
type Plan struct {
	// ID is the unique identifier for the plan.
	ID string `json:"id"`

	// ContextID links the plan to its owning task context.
	ContextID string `json:"context_id"`

	// EnglishQuestion is the normalized English form of the request this
	// plan attempts to answer.
	EnglishQuestion string `json:"english_question"`

	// ContextSummary is a short summary of the conversation so far.
	ContextSummary string `json:"context_summary,omitempty"`

	// QuestionChecklist lists the sub-questions the final answer must cover.
	QuestionChecklist []string `json:"question_checklist,omitempty"`

	// InvestigationGuidance carries optional hints for the planner.
	InvestigationGuidance string `json:"investigation_guidance,omitempty"`

	// Status is the plan lifecycle state.
	Status PlanStatus `json:"status"`

	// FinalAnswer holds the answer once the plan terminates. For failed
	// plans it carries the failure reason.
	FinalAnswer string `json:"final_answer,omitempty"`

	// Steps are the tool invocations in execution order.
	Steps []*PlanStep `json:"steps"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PendingSteps returns the steps still awaiting execution, in order.
func (p *Plan) PendingSteps() []*PlanStep {
	var pending []*PlanStep
	for _, s := range p.Steps {
		if s.Status == StepStatusPending {
			pending = append(pending, s)
		}
	}
	return pending
}

// CompletedSteps returns the steps that finished successfully, in order.
func (p *Plan) CompletedSteps() []*PlanStep {
	var done []*PlanStep
	for _, s := range p.Steps {
		if s.Status == StepStatusDone {
			done = append(done, s)
		}
	}
	return done
}

// ChecklistText renders the question checklist as a newline-separated list.
func (p *Plan) ChecklistText() string {
	return strings.Join(p.QuestionChecklist, "\n")
}

// StepStatus represents the lifecycle state of a plan step.
type StepStatus string

const (
	StepStatusPending StepStatus = "PENDING"
	StepStatusDone    StepStatus = "DONE"
	StepStatusFailed  StepStatus = "FAILED"
)

// PlanStep is one tool invocation within a plan. Steps are executed
// sequentially by ascending Order; DependsOn only ever references
// earlier orders.
type PlanStep struct {
	// ID is the unique identifier for the step.
	ID string `json:"id"`

	// PlanID links the step to its owning plan.
	PlanID string `json:"plan_id"`

	// ContextID links the step to the owning task context.
	ContextID string `json:"context_id"`

	// Order is the dense 0-based execution position within the plan.
	Order int `json:"order"`

	// ToolName names the registered tool this step invokes.
	ToolName string `json:"tool_name"`

	// Instruction is the planner-written task description for the tool.
	Instruction string `json:"instruction"`

	// DependsOn lists orders of earlier steps this step builds on.
	DependsOn []int `json:"depends_on,omitempty"`

	// Group identifies the goal this step was expanded from ("goal-<id>").
	Group string `json:"group,omitempty"`

	// Status is the step lifecycle state.
	Status StepStatus `json:"status"`

	// Result holds the tool outcome once the step has run.
	Result *ToolResult `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
