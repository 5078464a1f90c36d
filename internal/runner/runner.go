// Package runner owns the outer orchestration loop: plan, execute,
// resolution-check, re-plan until the request is resolved or the budget
// is exhausted.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JanDamek/jervis-sub011/internal/events"
	"github.com/JanDamek/jervis-sub011/internal/executor"
	"github.com/JanDamek/jervis-sub011/internal/gateway"
	"github.com/JanDamek/jervis-sub011/internal/observability"
	"github.com/JanDamek/jervis-sub011/internal/planner"
	"github.com/JanDamek/jervis-sub011/internal/prompts"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// maxAdditionalPlans bounds how many re-plans one request may trigger.
const maxAdditionalPlans = 2

// Gateway is the model surface the runner needs.
type Gateway interface {
	Complete(ctx context.Context, promptType string, vars map[string]string, opts gateway.Options) (*gateway.Result, error)
	CompleteInto(ctx context.Context, promptType string, vars map[string]string, opts gateway.Options, out any) (*gateway.Result, error)
}

// Discoverer provides retrieval context for planning.
type Discoverer interface {
	Discover(ctx context.Context, query string, clientID, projectID string) string
}

// Resolution is the outcome of a resolution check.
type Resolution struct {
	Complete            bool     `json:"complete"`
	MissingRequirements []string `json:"missingRequirements"`
}

// Runner ties planner, executor, and resolution checker together.
type Runner struct {
	planner    *planner.Planner
	executor   *executor.Executor
	gateway    Gateway
	discoverer Discoverer
	bus        *events.Bus
	logger     *observability.Logger
}

// New creates a runner.
func New(p *planner.Planner, e *executor.Executor, gw Gateway, discoverer Discoverer, bus *events.Bus, logger *observability.Logger) *Runner {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Runner{planner: p, executor: e, gateway: gw, discoverer: discoverer, bus: bus, logger: logger}
}

// Run drives the context until its request is resolved or the re-plan
// budget is spent, then emits the final answer. The boolean reports
// whether the resolution checker judged the run complete.
func (r *Runner) Run(ctx context.Context, tc *models.TaskContext) (bool, error) {
	replans := 0
	for {
		for {
			plan := tc.ActivePlan()
			if plan == nil {
				break
			}
			if err := r.executor.Execute(ctx, plan); err != nil {
				return false, err
			}
		}

		// An Ask result suspends politely: answer now, flag needsInput.
		if question, asked := pendingQuestion(tc); asked {
			r.publishFinalAnswer(tc, question, true)
			return true, nil
		}

		resolution, err := r.checkResolution(ctx, tc)
		if err != nil {
			return false, err
		}
		if resolution.Complete {
			r.finalize(ctx, tc)
			return true, nil
		}
		if len(resolution.MissingRequirements) == 0 || replans >= maxAdditionalPlans {
			r.finalize(ctx, tc)
			return false, nil
		}

		if err := r.replan(ctx, tc, resolution.MissingRequirements); err != nil {
			r.logger.Warn(ctx, "re-planning failed, returning current resolution", "error", err)
			r.finalize(ctx, tc)
			return false, nil
		}
		replans++
	}
}

// replan appends a new plan: a recovery plan when the last plan died on a
// failed step, otherwise a plan enumerating the missing requirements.
func (r *Runner) replan(ctx context.Context, tc *models.TaskContext, missing []string) error {
	last := tc.LastPlan()
	if failedStep := firstFailedStep(last); failedStep != nil {
		plan, err := r.planner.CreateRecoveryPlan(ctx, tc, last, failedStep)
		if err != nil {
			return err
		}
		tc.Plans = append(tc.Plans, plan)
		return nil
	}

	question := "Address the missing requirements: " + strings.Join(missing, "; ")
	plan := planner.NewPlan(tc, question, missing, "")
	discovery := ""
	if r.discoverer != nil {
		discovery = r.discoverer.Discover(ctx, question, tc.ClientID, tc.ProjectID)
	}
	if err := r.planner.CreatePlan(ctx, tc, plan, discovery); err != nil {
		return err
	}
	tc.Plans = append(tc.Plans, plan)
	return nil
}

func (r *Runner) checkResolution(ctx context.Context, tc *models.TaskContext) (*Resolution, error) {
	if tc.LastPlan() == nil {
		return &Resolution{Complete: false}, nil
	}
	vars := map[string]string{
		"englishQuestion":       tc.EnglishText,
		"questionChecklistText": checklistText(tc),
		"planSummaries":         summarizePlans(tc),
	}
	var resolution Resolution
	if _, err := r.gateway.CompleteInto(ctx, prompts.TypeResolutionCheck, vars, gateway.Options{Quick: tc.Quick}, &resolution); err != nil {
		return nil, fmt.Errorf("resolution check: %w", err)
	}
	return &resolution, nil
}

// finalize composes the final answer from completed step outputs and
// publishes it. Failed plans that already carry a finalAnswer keep it.
func (r *Runner) finalize(ctx context.Context, tc *models.TaskContext) {
	last := tc.LastPlan()
	if last == nil {
		return
	}
	if last.FinalAnswer == "" {
		vars := map[string]string{
			"originalText":    tc.OriginalText,
			"englishQuestion": tc.EnglishText,
			"stepOutputs":     stepOutputs(tc),
			"languageCode":    tc.LanguageCode,
		}
		result, err := r.gateway.Complete(ctx, prompts.TypeFinalAnswer, vars, gateway.Options{Quick: tc.Quick})
		if err != nil {
			r.logger.Warn(ctx, "final answer composition failed", "error", err)
			last.FinalAnswer = "The request could not be fully answered."
		} else {
			last.FinalAnswer = result.Text
		}
		last.UpdatedAt = time.Now()
	}
	r.publishFinalAnswer(tc, last.FinalAnswer, false)
}

func (r *Runner) publishFinalAnswer(tc *models.TaskContext, answer string, needsInput bool) {
	if r.bus == nil {
		return
	}
	planID := ""
	if last := tc.LastPlan(); last != nil {
		planID = last.ID
	}
	r.bus.Publish(models.OrchestrationEvent{
		Type:       models.EventFinalAnswer,
		ContextID:  tc.ID,
		PlanID:     planID,
		Answer:     answer,
		NeedsInput: needsInput,
	})
}

// pendingQuestion finds an Ask result on the latest plan.
func pendingQuestion(tc *models.TaskContext) (string, bool) {
	last := tc.LastPlan()
	if last == nil {
		return "", false
	}
	for _, step := range last.Steps {
		if step.Result != nil && step.Result.Kind == models.ToolResultAsk {
			return step.Result.Output, true
		}
	}
	return "", false
}

func firstFailedStep(plan *models.Plan) *models.PlanStep {
	if plan == nil {
		return nil
	}
	for _, step := range plan.Steps {
		if step.Status == models.StepStatusFailed {
			return step
		}
	}
	return nil
}

func checklistText(tc *models.TaskContext) string {
	if len(tc.Plans) == 0 {
		return ""
	}
	return tc.Plans[0].ChecklistText()
}

// summarizePlans renders every plan with its step outcomes for the
// resolution prompt.
func summarizePlans(tc *models.TaskContext) string {
	var b strings.Builder
	for i, plan := range tc.Plans {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Plan %d (%s): %s", i+1, plan.Status, plan.EnglishQuestion)
		for _, step := range plan.Steps {
			output := ""
			if step.Result != nil {
				output = firstChars(step.Result.Output, 200)
				if step.Result.ErrorMessage != "" {
					output = "error: " + step.Result.ErrorMessage
				}
			}
			fmt.Fprintf(&b, "\n  step %d [%s] %s: %s", step.Order, step.Status, step.ToolName, output)
		}
	}
	return b.String()
}

// stepOutputs concatenates completed step outputs across all plans.
func stepOutputs(tc *models.TaskContext) string {
	var b strings.Builder
	for _, plan := range tc.Plans {
		for _, step := range plan.CompletedSteps() {
			if step.Result == nil || step.Result.Output == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "%s:\n%s", step.ToolName, step.Result.Output)
		}
	}
	if b.Len() == 0 {
		return "(no step outputs)"
	}
	return b.String()
}

func firstChars(text string, limit int) string {
	if len(text) > limit {
		return text[:limit]
	}
	return text
}
