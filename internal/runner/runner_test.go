package runner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JanDamek/jervis-sub011/internal/events"
	"github.com/JanDamek/jervis-sub011/internal/executor"
	"github.com/JanDamek/jervis-sub011/internal/gateway"
	"github.com/JanDamek/jervis-sub011/internal/planner"
	"github.com/JanDamek/jervis-sub011/internal/tools"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// fakeGW pops canned responses per prompt type. CompleteInto unmarshals
// the payload, Complete returns it verbatim.
type fakeGW struct {
	mu        sync.Mutex
	responses map[string][]string
	calls     []string
}

func (f *fakeGW) next(promptType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, promptType)
	queue := f.responses[promptType]
	if len(queue) == 0 {
		return "", errors.New("no canned response for " + promptType)
	}
	payload := queue[0]
	if len(queue) > 1 {
		f.responses[promptType] = queue[1:]
	}
	return payload, nil
}

func (f *fakeGW) Complete(_ context.Context, promptType string, _ map[string]string, _ gateway.Options) (*gateway.Result, error) {
	payload, err := f.next(promptType)
	if err != nil {
		return nil, err
	}
	return &gateway.Result{Text: payload}, nil
}

func (f *fakeGW) CompleteInto(_ context.Context, promptType string, _ map[string]string, _ gateway.Options, out any) (*gateway.Result, error) {
	payload, err := f.next(promptType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return nil, err
	}
	return &gateway.Result{Text: payload}, nil
}

type scriptedTool struct {
	name    string
	results []*models.ToolResult
	calls   int
}

func (s *scriptedTool) Name() string        { return s.name }
func (s *scriptedTool) Description() string { return s.name + " scripted" }
func (s *scriptedTool) Execute(context.Context, *models.Plan, string, string) (*models.ToolResult, error) {
	if s.calls >= len(s.results) {
		return nil, errors.New("unexpected extra call")
	}
	result := s.results[s.calls]
	s.calls++
	return result, nil
}

func newRunner(t *testing.T, gw *fakeGW, bus *events.Bus, registered ...tools.Tool) *Runner {
	t.Helper()
	registry, err := tools.NewRegistry(registered...)
	if err != nil {
		t.Fatal(err)
	}
	p := planner.New(gw, registry, nil)
	e := executor.New(registry, bus, nil, nil)
	return New(p, e, gw, nil, bus, nil)
}

func contextWithPlan(toolName string, instructions ...string) *models.TaskContext {
	tc := &models.TaskContext{ID: "ctx-1", EnglishText: "question"}
	plan := &models.Plan{
		ID: "plan-1", ContextID: tc.ID,
		EnglishQuestion: "question",
		Status:          models.PlanStatusCreated,
	}
	for i, instruction := range instructions {
		plan.Steps = append(plan.Steps, &models.PlanStep{
			ID: instruction, PlanID: plan.ID, Order: i,
			ToolName: toolName, Instruction: instruction,
			Status: models.StepStatusPending,
		})
	}
	tc.Plans = []*models.Plan{plan}
	return tc
}

func waitForFinalAnswer(t *testing.T, ch <-chan models.OrchestrationEvent) models.OrchestrationEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				t.Fatal("event channel closed before final answer")
			}
			if event.Type == models.EventFinalAnswer {
				return event
			}
		case <-deadline:
			t.Fatal("timed out waiting for final answer")
		}
	}
}

func TestRunCompletesAndPublishesAnswer(t *testing.T) {
	gw := &fakeGW{responses: map[string][]string{
		"resolution_check": {`{"complete": true, "missingRequirements": []}`},
		"final_answer":     {"The report says revenue grew."},
	}}
	bus := events.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	tool := &scriptedTool{name: "READ_FILE", results: []*models.ToolResult{models.Ok("report body")}}
	r := newRunner(t, gw, bus, tool)
	tc := contextWithPlan("READ_FILE", "read the report")

	complete, err := r.Run(context.Background(), tc)
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Error("run should report complete")
	}
	if tc.Plans[0].Status != models.PlanStatusCompleted {
		t.Errorf("plan status = %s", tc.Plans[0].Status)
	}
	if tc.Plans[0].FinalAnswer != "The report says revenue grew." {
		t.Errorf("finalAnswer = %q", tc.Plans[0].FinalAnswer)
	}
	event := waitForFinalAnswer(t, ch)
	if event.Answer != "The report says revenue grew." || event.NeedsInput {
		t.Errorf("event = %+v", event)
	}
}

func TestRunRecoversFromFailedStep(t *testing.T) {
	gw := &fakeGW{responses: map[string][]string{
		"resolution_check": {
			`{"complete": false, "missingRequirements": ["the report summary"]}`,
			`{"complete": true, "missingRequirements": []}`,
		},
		"goal_creation": {`{"goals": [{"goalId": 0, "goalIntent": "try another way"}]}`,
		},
		"plan_creation": {`{"steps": [{"stepToolName": "LLM_ANSWER", "stepInstruction": "answer from knowledge", "stepDependsOn": -1}]}`,
		},
		"final_answer": {"Recovered answer."},
	}}
	bus := events.NewBus()

	failing := &scriptedTool{name: "READ_FILE", results: []*models.ToolResult{
		models.ErrorResult("", "no such file"),
	}}
	fallback := &scriptedTool{name: "LLM_ANSWER", results: []*models.ToolResult{
		models.Ok("answer from model knowledge"),
	}}
	r := newRunner(t, gw, bus, failing, fallback)
	tc := contextWithPlan("READ_FILE", "read missing.txt")

	complete, err := r.Run(context.Background(), tc)
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Error("run should complete after recovery")
	}
	if len(tc.Plans) != 2 {
		t.Fatalf("got %d plans, want 2", len(tc.Plans))
	}
	if tc.Plans[0].Status != models.PlanStatusFailed {
		t.Errorf("first plan status = %s", tc.Plans[0].Status)
	}
	recovery := tc.Plans[1]
	if recovery.Status != models.PlanStatusCompleted {
		t.Errorf("recovery plan status = %s", recovery.Status)
	}
	want := "Recover from failed step: READ_FILE - read missing.txt"
	if recovery.EnglishQuestion != want {
		t.Errorf("recovery question = %q", recovery.EnglishQuestion)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback tool ran %d times", fallback.calls)
	}
}

func TestRunAskFlagsNeedsInput(t *testing.T) {
	gw := &fakeGW{responses: map[string][]string{}}
	bus := events.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	ask := &scriptedTool{name: "ASK_USER", results: []*models.ToolResult{
		models.Ask("Which environment should I target?"),
	}}
	r := newRunner(t, gw, bus, ask)
	tc := contextWithPlan("ASK_USER", "clarify environment")

	complete, err := r.Run(context.Background(), tc)
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Error("an Ask ends the run")
	}
	// No resolution check or final-answer composition should have run.
	if len(gw.calls) != 0 {
		t.Errorf("gateway calls = %v, want none", gw.calls)
	}
	event := waitForFinalAnswer(t, ch)
	if !event.NeedsInput {
		t.Error("final answer should flag needsInput")
	}
	if event.Answer != "Which environment should I target?" {
		t.Errorf("answer = %q", event.Answer)
	}
}

func TestRunReplanBudgetExhausted(t *testing.T) {
	// The checker never reports complete and planning keeps producing
	// plans; the budget caps the loop.
	gw := &fakeGW{responses: map[string][]string{
		"resolution_check": {`{"complete": false, "missingRequirements": ["more detail"]}`},
		"goal_creation":    {`{"goals": [{"goalId": 0, "goalIntent": "dig deeper"}]}`},
		"plan_creation":    {`{"steps": [{"stepToolName": "T", "stepInstruction": "dig", "stepDependsOn": -1}]}`},
		"final_answer":     {"Best effort answer."},
	}}
	bus := events.NewBus()

	tool := &scriptedTool{name: "T", results: []*models.ToolResult{
		models.Ok("a"), models.Ok("b"), models.Ok("c"), models.Ok("d"),
	}}
	r := newRunner(t, gw, bus, tool)
	tc := contextWithPlan("T", "first attempt")

	complete, err := r.Run(context.Background(), tc)
	if err != nil {
		t.Fatal(err)
	}
	if complete {
		t.Error("run should report incomplete")
	}
	if len(tc.Plans) != 1+maxAdditionalPlans {
		t.Errorf("got %d plans, want %d", len(tc.Plans), 1+maxAdditionalPlans)
	}
	if tc.LastPlan().FinalAnswer != "Best effort answer." {
		t.Errorf("finalAnswer = %q", tc.LastPlan().FinalAnswer)
	}
}

func TestSubmitQualifiesAndRuns(t *testing.T) {
	gw := &fakeGW{responses: map[string][]string{
		"qualifier":        {`{"languageCode": "cs", "englishText": "What does the report say?", "questionChecklist": ["summarize the report"]}`},
		"goal_creation":    {`{"goals": [{"goalId": 0, "goalIntent": "read and summarize"}]}`},
		"plan_creation":    {`{"steps": [{"stepToolName": "READ_FILE", "stepInstruction": "read report.md", "stepDependsOn": -1}]}`},
		"resolution_check": {`{"complete": true, "missingRequirements": []}`},
		"final_answer":     {"Zpráva říká, že tržby rostly."},
	}}
	bus := events.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	registry, err := tools.NewRegistry(&scriptedTool{name: "READ_FILE", results: []*models.ToolResult{models.Ok("report body")}})
	if err != nil {
		t.Fatal(err)
	}
	p := planner.New(gw, registry, nil)
	e := executor.New(registry, bus, nil, nil)
	r := New(p, e, gw, nil, bus, nil)
	s := NewService(r, p, gw, nil, nil, nil)

	tc, err := s.Submit(context.Background(), Request{ClientID: "acme", Text: "Co říká ta zpráva?"})
	if err != nil {
		t.Fatal(err)
	}
	if tc.LanguageCode != "cs" || tc.EnglishText != "What does the report say?" {
		t.Errorf("qualification not applied: %+v", tc)
	}
	if len(tc.Plans) != 1 || len(tc.Plans[0].Steps) != 1 {
		t.Fatalf("initial plan not built: %+v", tc.Plans)
	}
	if tc.Plans[0].QuestionChecklist[0] != "summarize the report" {
		t.Errorf("checklist = %v", tc.Plans[0].QuestionChecklist)
	}

	event := waitForFinalAnswer(t, ch)
	if event.Answer != "Zpráva říká, že tržby rostly." {
		t.Errorf("answer = %q", event.Answer)
	}
	if event.ContextID != tc.ID {
		t.Errorf("context id = %q, want %q", event.ContextID, tc.ID)
	}
}

func TestSubmitEmptyTextRejected(t *testing.T) {
	s := NewService(nil, nil, &fakeGW{}, nil, nil, nil)
	if _, err := s.Submit(context.Background(), Request{}); err == nil {
		t.Fatal("empty text must be rejected")
	}
}
