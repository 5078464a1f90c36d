// Package planner creates and revises plans: goal decomposition, goal
// expansion into tool steps, dependency-aware sequencing, and recovery
// planning after failed steps.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JanDamek/jervis-sub011/internal/gateway"
	"github.com/JanDamek/jervis-sub011/internal/observability"
	"github.com/JanDamek/jervis-sub011/internal/prompts"
	"github.com/JanDamek/jervis-sub011/internal/tools"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// maxRetryAttempts bounds schema-violation retries per gateway call.
const maxRetryAttempts = 2

// ErrPlanner wraps planning failures that exhausted their retry budget.
var ErrPlanner = errors.New("planner failure")

// Gateway is the model surface the planner needs.
type Gateway interface {
	CompleteInto(ctx context.Context, promptType string, vars map[string]string, opts gateway.Options, out any) (*gateway.Result, error)
}

// Planner builds plans through the two-phase goal pipeline.
type Planner struct {
	gateway  Gateway
	registry *tools.Registry
	logger   *observability.Logger
}

// New creates a planner.
func New(gw Gateway, registry *tools.Registry, logger *observability.Logger) *Planner {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Planner{gateway: gw, registry: registry, logger: logger}
}

// NewPlan constructs a bare plan for the context.
func NewPlan(tc *models.TaskContext, englishQuestion string, checklist []string, guidance string) *models.Plan {
	now := time.Now()
	return &models.Plan{
		ID:                    uuid.NewString(),
		ContextID:             tc.ID,
		EnglishQuestion:       englishQuestion,
		QuestionChecklist:     checklist,
		InvestigationGuidance: guidance,
		Status:                models.PlanStatusCreated,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// CreateGoals decomposes the plan's question into goals using the
// discovery context.
func (p *Planner) CreateGoals(ctx context.Context, tc *models.TaskContext, plan *models.Plan, discovery string) ([]models.Goal, error) {
	vars := map[string]string{
		"planEnglishQuestion":   plan.EnglishQuestion,
		"discoveryResult":       discovery,
		"questionChecklistText": plan.ChecklistText(),
	}
	var out struct {
		Goals []models.Goal `json:"goals"`
	}
	if err := p.completeWithRetry(ctx, prompts.TypeGoalCreation, vars, tc.Quick, &out); err != nil {
		return nil, err
	}
	if len(out.Goals) == 0 {
		return nil, fmt.Errorf("%w: goal creation produced no goals", ErrPlanner)
	}
	if checklist := len(plan.QuestionChecklist); checklist > 0 && len(out.Goals) < checklist {
		p.logger.Warn(ctx, "fewer goals than checklist items, resolution check will likely flag the run incomplete",
			"goals", len(out.Goals), "checklist_items", checklist)
	}
	return out.Goals, nil
}

// ExpandGoal turns one goal into step drafts. Every referenced tool must
// be registered; an unknown tool fails the whole expansion.
func (p *Planner) ExpandGoal(ctx context.Context, tc *models.TaskContext, plan *models.Plan, goal models.Goal, discovery string) ([]models.StepDraft, error) {
	planContext := fmt.Sprintf("Goal %d: %s", goal.GoalID, goal.Intent)
	if len(goal.DependsOn) > 0 {
		deps := make([]string, len(goal.DependsOn))
		for i, dep := range goal.DependsOn {
			deps[i] = fmt.Sprintf("goal %d", dep)
		}
		planContext += "\nBuilds on: " + strings.Join(deps, ", ")
	}
	if discovery != "" {
		planContext += "\n\nDiscovered context:\n" + discovery
	}

	vars := map[string]string{
		"clientDescription":     tc.ClientID,
		"projectDescription":    tc.ProjectID,
		"planContext":           planContext,
		"userRequest":           plan.EnglishQuestion,
		"questionChecklist":     plan.ChecklistText(),
		"investigationGuidance": plan.InvestigationGuidance,
		"availableTools":        p.registry.Names(),
		"toolDescriptions":      p.registry.Descriptions(),
	}
	var out struct {
		Steps []models.StepDraft `json:"steps"`
	}
	if err := p.completeWithRetry(ctx, prompts.TypePlanCreation, vars, tc.Quick, &out); err != nil {
		return nil, err
	}
	for _, draft := range out.Steps {
		if _, err := p.registry.ByName(draft.ToolName); err != nil {
			return nil, fmt.Errorf("expand goal %d: %w", goal.GoalID, err)
		}
	}
	return out.Steps, nil
}

// CreatePlan runs the full pipeline: goals, expansion, sequencing. The
// plan's Steps are populated in execution order.
func (p *Planner) CreatePlan(ctx context.Context, tc *models.TaskContext, plan *models.Plan, discovery string) error {
	goals, err := p.CreateGoals(ctx, tc, plan, discovery)
	if err != nil {
		return err
	}
	stepsByGoal := make(map[int][]models.StepDraft, len(goals))
	for _, goal := range goals {
		drafts, err := p.ExpandGoal(ctx, tc, plan, goal, discovery)
		if err != nil {
			return err
		}
		stepsByGoal[goal.GoalID] = drafts
	}
	plan.Steps = Sequence(plan, goals, stepsByGoal)
	plan.UpdatedAt = time.Now()
	return nil
}

func (p *Planner) completeWithRetry(ctx context.Context, promptType string, vars map[string]string, quick bool, out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetryAttempts; attempt++ {
		_, err := p.gateway.CompleteInto(ctx, promptType, vars, gateway.Options{Quick: quick}, out)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gateway.ErrSchemaViolation) {
			return err
		}
		lastErr = err
		p.logger.Warn(ctx, "model output failed schema, retrying",
			"prompt_type", promptType, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("%w: %s exhausted %d retries: %v", ErrPlanner, promptType, maxRetryAttempts, lastErr)
}
