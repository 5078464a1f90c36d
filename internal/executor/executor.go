// Package executor drives a single plan to a terminal status, running
// pending steps sequentially in order.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JanDamek/jervis-sub011/internal/events"
	"github.com/JanDamek/jervis-sub011/internal/observability"
	"github.com/JanDamek/jervis-sub011/internal/tools"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// stepContextPreviewChars caps the per-step output line in the context
// summary handed to later tools.
const stepContextPreviewChars = 100

// noPreviousSteps is the literal context when nothing has completed yet.
const noPreviousSteps = "No previous steps completed yet."

// Executor runs plans.
type Executor struct {
	registry *tools.Registry
	bus      *events.Bus
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// New creates an executor.
func New(registry *tools.Registry, bus *events.Bus, logger *observability.Logger, metrics *observability.Metrics) *Executor {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Executor{registry: registry, bus: bus, logger: logger, metrics: metrics}
}

// Execute drives plan to COMPLETED or FAILED. Steps run sequentially by
// order; an Error result fails the step but leaves the plan running for
// later re-planning, while Stop and tool exceptions fail the plan.
func (e *Executor) Execute(ctx context.Context, plan *models.Plan) error {
	if len(plan.Steps) == 0 {
		e.terminate(plan, models.PlanStatusFailed, "Plan has no executable steps")
		return nil
	}

	plan.Status = models.PlanStatusRunning
	plan.UpdatedAt = time.Now()
	e.publishPlanStatus(plan)

	for _, step := range plan.PendingSteps() {
		if err := ctx.Err(); err != nil {
			return err
		}

		tool, err := e.registry.ByName(step.ToolName)
		if err != nil {
			e.finishStep(plan, step, models.ErrorResult("", err.Error()), models.StepStatusFailed)
			continue
		}

		result, err := e.runTool(ctx, tool, plan, step)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Tool panic/exception: the plan cannot be trusted to continue.
			e.finishStep(plan, step, models.ErrorResult("", err.Error()), models.StepStatusFailed)
			e.terminate(plan, models.PlanStatusFailed, err.Error())
			return nil
		}

		switch result.Kind {
		case models.ToolResultOk, models.ToolResultAsk:
			e.finishStep(plan, step, result, models.StepStatusDone)
		case models.ToolResultError:
			e.finishStep(plan, step, result, models.StepStatusFailed)
			// Plan stays RUNNING; the runner may re-plan around it.
		case models.ToolResultStop:
			e.finishStep(plan, step, result, models.StepStatusFailed)
			e.terminate(plan, models.PlanStatusFailed, result.StopReason)
			return nil
		default:
			e.finishStep(plan, step, result, models.StepStatusFailed)
			e.terminate(plan, models.PlanStatusFailed, fmt.Sprintf("unknown tool result kind %q", result.Kind))
			return nil
		}
	}

	if plan.Status == models.PlanStatusRunning {
		e.completeRun(plan)
	}
	return nil
}

func (e *Executor) runTool(ctx context.Context, tool tools.Tool, plan *models.Plan, step *models.PlanStep) (result *models.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", step.ToolName, r)
		}
	}()
	stepContext := BuildStepContext(plan)
	e.logger.Debug(ctx, "executing step",
		"plan_id", plan.ID, "order", step.Order, "tool", step.ToolName)
	return tool.Execute(ctx, plan, step.Instruction, stepContext)
}

// completeRun decides the terminal status after all pending steps ran: a
// plan with failed steps ends FAILED, otherwise COMPLETED.
func (e *Executor) completeRun(plan *models.Plan) {
	for _, step := range plan.Steps {
		if step.Status == models.StepStatusFailed {
			e.terminate(plan, models.PlanStatusFailed, "")
			return
		}
	}
	e.terminate(plan, models.PlanStatusCompleted, "")
}

func (e *Executor) finishStep(plan *models.Plan, step *models.PlanStep, result *models.ToolResult, status models.StepStatus) {
	step.Result = result
	step.Status = status
	step.UpdatedAt = time.Now()
	if e.metrics != nil {
		e.metrics.ToolExecutions.WithLabelValues(step.ToolName, string(result.Kind)).Inc()
	}
	if e.bus != nil {
		e.bus.Publish(models.OrchestrationEvent{
			Type:      models.EventStepCompleted,
			ContextID: plan.ContextID,
			PlanID:    plan.ID,
			Step:      step,
		})
	}
}

func (e *Executor) terminate(plan *models.Plan, status models.PlanStatus, finalAnswer string) {
	plan.Status = status
	if finalAnswer != "" {
		plan.FinalAnswer = finalAnswer
	}
	plan.UpdatedAt = time.Now()
	if e.metrics != nil && status.IsTerminal() {
		e.metrics.PlansTotal.WithLabelValues(string(status)).Inc()
	}
	e.publishPlanStatus(plan)
}

func (e *Executor) publishPlanStatus(plan *models.Plan) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(models.OrchestrationEvent{
		Type:       models.EventPlanStatus,
		ContextID:  plan.ContextID,
		PlanID:     plan.ID,
		PlanStatus: plan.Status,
	})
}

// BuildStepContext renders earlier DONE steps as a prose list for the
// next tool.
func BuildStepContext(plan *models.Plan) string {
	completed := plan.CompletedSteps()
	if len(completed) == 0 {
		return noPreviousSteps
	}
	var b strings.Builder
	for i, step := range completed {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", step.ToolName, firstLine(stepOutput(step), stepContextPreviewChars))
	}
	return b.String()
}

func stepOutput(step *models.PlanStep) string {
	if step.Result == nil {
		return ""
	}
	return step.Result.Output
}

func firstLine(text string, limit int) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	if len(text) > limit {
		text = text[:limit]
	}
	return text
}
