package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// previewChars caps step output previews in the failure-analysis context.
const previewChars = 100

// CreateRecoveryPlan builds and populates a derivative plan that attempts
// an alternative approach for the failed step. The failure analysis is
// carried as investigation guidance so the expansion prompt steers the
// model away from the failed tool.
func (p *Planner) CreateRecoveryPlan(ctx context.Context, tc *models.TaskContext, failed *models.Plan, failedStep *models.PlanStep) (*models.Plan, error) {
	if failedStep == nil {
		return nil, fmt.Errorf("%w: no failed step to recover from", ErrPlanner)
	}

	guidance := buildFailureAnalysis(failed, failedStep)
	plan := NewPlan(tc,
		fmt.Sprintf("Recover from failed step: %s - %s", failedStep.ToolName, failedStep.Instruction),
		[]string{fmt.Sprintf("Create alternative approach to accomplish: %s", failedStep.Instruction)},
		guidance,
	)
	if err := p.CreatePlan(ctx, tc, plan, ""); err != nil {
		return nil, err
	}
	return plan, nil
}

// buildFailureAnalysis renders what went wrong: the failed step, the step
// that would have followed, and previews of what already completed.
func buildFailureAnalysis(plan *models.Plan, failedStep *models.PlanStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A previous plan failed at step %d.\n", failedStep.Order)
	fmt.Fprintf(&b, "Failed tool: %s\n", failedStep.ToolName)
	fmt.Fprintf(&b, "Failed instruction: %s\n", failedStep.Instruction)
	if failedStep.Result != nil {
		output := failedStep.Result.Output
		if failedStep.Result.ErrorMessage != "" {
			output = failedStep.Result.ErrorMessage
		}
		fmt.Fprintf(&b, "Failure output: %s\n", output)
	}
	for _, step := range plan.Steps {
		if step.Order == failedStep.Order+1 {
			fmt.Fprintf(&b, "Next planned step was: %s - %s\n", step.ToolName, step.Instruction)
			break
		}
	}
	if completed := plan.CompletedSteps(); len(completed) > 0 {
		b.WriteString("Steps already completed:\n")
		for _, step := range completed {
			b.WriteString(fmt.Sprintf("- %s: %s\n", step.ToolName, preview(step)))
		}
	}
	b.WriteString(fmt.Sprintf("Prefer tools other than %s for the alternative approach.", failedStep.ToolName))
	return b.String()
}

func preview(step *models.PlanStep) string {
	if step.Result == nil {
		return ""
	}
	text := step.Result.Output
	if len(text) > previewChars {
		text = text[:previewChars]
	}
	return text
}
