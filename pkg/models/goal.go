package models

// Goal is an intermediate planner abstraction. The planner first decomposes
// a request into goals, then expands each goal into concrete steps.
type Goal struct {
	// GoalID is a small dense integer, 0..N-1 within one plan.
	GoalID int `json:"goalId"`

	// Intent describes what this goal accomplishes.
	Intent string `json:"goalIntent"`

	// DependsOn references earlier-numbered goals this goal builds on.
	// The set is acyclic by construction.
	DependsOn []int `json:"dependsOn,omitempty"`
}

// StepDraft is a step descriptor produced by goal expansion, before
// sequencing assigns absolute orders. DependsOn is a single local 0-based
// index into the owning goal's step list; -1 means no dependency.
type StepDraft struct {
	ToolName    string `json:"stepToolName"`
	Instruction string `json:"stepInstruction"`
	DependsOn   int    `json:"stepDependsOn"`
}
