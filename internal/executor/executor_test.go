package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JanDamek/jervis-sub011/internal/tools"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// scriptedTool replays results in order; a nil entry raises an exception.
type scriptedTool struct {
	name    string
	results []*models.ToolResult
	seen    []string
	calls   int
}

func (s *scriptedTool) Name() string        { return s.name }
func (s *scriptedTool) Description() string { return s.name + " scripted" }
func (s *scriptedTool) Execute(_ context.Context, _ *models.Plan, instruction, stepContext string) (*models.ToolResult, error) {
	s.seen = append(s.seen, stepContext)
	if s.calls >= len(s.results) {
		return nil, errors.New("unexpected extra call")
	}
	result := s.results[s.calls]
	s.calls++
	if result == nil {
		return nil, errors.New("tool blew up")
	}
	return result, nil
}

func planWithSteps(toolName string, instructions ...string) *models.Plan {
	plan := &models.Plan{ID: "p1", ContextID: "c1", Status: models.PlanStatusCreated}
	for i, instruction := range instructions {
		plan.Steps = append(plan.Steps, &models.PlanStep{
			ID: instruction, PlanID: "p1", Order: i,
			ToolName: toolName, Instruction: instruction,
			Status: models.StepStatusPending,
		})
	}
	return plan
}

func newExecutor(t *testing.T, registered ...tools.Tool) *Executor {
	t.Helper()
	registry, err := tools.NewRegistry(registered...)
	if err != nil {
		t.Fatal(err)
	}
	return New(registry, nil, nil, nil)
}

func TestEmptyPlanFails(t *testing.T) {
	e := newExecutor(t)
	plan := &models.Plan{ID: "p1", Status: models.PlanStatusCreated}
	if err := e.Execute(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	if plan.Status != models.PlanStatusFailed {
		t.Errorf("status = %s, want FAILED", plan.Status)
	}
	if plan.FinalAnswer != "Plan has no executable steps" {
		t.Errorf("finalAnswer = %q", plan.FinalAnswer)
	}
}

func TestLinearPlanCompletes(t *testing.T) {
	tool := &scriptedTool{name: "LIST_FILES", results: []*models.ToolResult{
		models.Ok("a.go\nb.go"),
	}}
	e := newExecutor(t, tool)
	plan := planWithSteps("LIST_FILES", "list src")

	if err := e.Execute(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	if plan.Status != models.PlanStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", plan.Status)
	}
	if plan.Steps[0].Status != models.StepStatusDone {
		t.Errorf("step status = %s", plan.Steps[0].Status)
	}
	if tool.seen[0] != "No previous steps completed yet." {
		t.Errorf("first step context = %q", tool.seen[0])
	}
}

func TestStepContextCarriesEarlierOutputs(t *testing.T) {
	tool := &scriptedTool{name: "T", results: []*models.ToolResult{
		models.Ok("first output line\nsecond line"),
		models.Ok("done"),
	}}
	e := newExecutor(t, tool)
	plan := planWithSteps("T", "one", "two")

	if err := e.Execute(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	want := "- T: first output line"
	if tool.seen[1] != want {
		t.Errorf("second step context = %q, want %q", tool.seen[1], want)
	}
}

func TestErrorResultFailsStepNotPlanUntilEnd(t *testing.T) {
	tool := &scriptedTool{name: "T", results: []*models.ToolResult{
		models.ErrorResult("", "no such file"),
		models.Ok("recovered"),
	}}
	e := newExecutor(t, tool)
	plan := planWithSteps("T", "one", "two")

	if err := e.Execute(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	// The later step still ran.
	if tool.calls != 2 {
		t.Errorf("tool called %d times, want 2", tool.calls)
	}
	if plan.Steps[0].Status != models.StepStatusFailed {
		t.Errorf("failed step status = %s", plan.Steps[0].Status)
	}
	if plan.Steps[1].Status != models.StepStatusDone {
		t.Errorf("second step status = %s", plan.Steps[1].Status)
	}
	// A plan with a failed step is not complete.
	if plan.Status != models.PlanStatusFailed {
		t.Errorf("plan status = %s, want FAILED", plan.Status)
	}
}

func TestAskCountsAsDone(t *testing.T) {
	tool := &scriptedTool{name: "ASK", results: []*models.ToolResult{
		models.Ask("Which environment?"),
	}}
	e := newExecutor(t, tool)
	plan := planWithSteps("ASK", "clarify")

	if err := e.Execute(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	if plan.Steps[0].Status != models.StepStatusDone {
		t.Errorf("ask step status = %s, want DONE", plan.Steps[0].Status)
	}
	if plan.Status != models.PlanStatusCompleted {
		t.Errorf("plan status = %s, want COMPLETED", plan.Status)
	}
}

func TestStopFailsPlanWithReason(t *testing.T) {
	tool := &scriptedTool{name: "T", results: []*models.ToolResult{
		models.Stop("", "request is destructive"),
		models.Ok("never runs"),
	}}
	e := newExecutor(t, tool)
	plan := planWithSteps("T", "one", "two")

	if err := e.Execute(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	if plan.Status != models.PlanStatusFailed {
		t.Errorf("plan status = %s", plan.Status)
	}
	if plan.FinalAnswer != "request is destructive" {
		t.Errorf("finalAnswer = %q", plan.FinalAnswer)
	}
	if tool.calls != 1 {
		t.Errorf("execution should halt after Stop, tool ran %d times", tool.calls)
	}
	if plan.Steps[1].Status != models.StepStatusPending {
		t.Errorf("later step should stay PENDING, got %s", plan.Steps[1].Status)
	}
}

func TestToolExceptionFailsPlan(t *testing.T) {
	tool := &scriptedTool{name: "T", results: []*models.ToolResult{nil}}
	e := newExecutor(t, tool)
	plan := planWithSteps("T", "one")

	if err := e.Execute(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	if plan.Status != models.PlanStatusFailed {
		t.Errorf("plan status = %s", plan.Status)
	}
	if !strings.Contains(plan.FinalAnswer, "tool blew up") {
		t.Errorf("finalAnswer = %q", plan.FinalAnswer)
	}
}

func TestUnknownToolFailsStepOnly(t *testing.T) {
	known := &scriptedTool{name: "KNOWN", results: []*models.ToolResult{models.Ok("fine")}}
	e := newExecutor(t, known)
	plan := &models.Plan{ID: "p1", Status: models.PlanStatusCreated, Steps: []*models.PlanStep{
		{ID: "s0", Order: 0, ToolName: "MISSING", Status: models.StepStatusPending},
		{ID: "s1", Order: 1, ToolName: "KNOWN", Status: models.StepStatusPending},
	}}

	if err := e.Execute(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	if plan.Steps[0].Status != models.StepStatusFailed {
		t.Errorf("unknown-tool step status = %s", plan.Steps[0].Status)
	}
	if plan.Steps[1].Status != models.StepStatusDone {
		t.Errorf("known step should still run, status = %s", plan.Steps[1].Status)
	}
}
