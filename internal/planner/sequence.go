package planner

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// Sequence linearizes (goal, drafts) pairs into executable steps:
// topological goal order with goal-id tie-breaking, dense 0-based orders,
// and local step dependencies remapped to absolute orders. Local
// references that fall outside the valid earlier-step range are dropped.
// A goal-level dependency becomes a step dependency from the dependent
// goal's first step to the last step of each goal it builds on.
func Sequence(plan *models.Plan, goals []models.Goal, stepsByGoal map[int][]models.StepDraft) []*models.PlanStep {
	ordered := topoSortGoals(goals)

	now := time.Now()
	lastStepOfGoal := make(map[int]int, len(ordered))
	var steps []*models.PlanStep
	for _, goal := range ordered {
		goalStart := len(steps)
		for local, draft := range stepsByGoal[goal.GoalID] {
			absolute := len(steps)
			step := &models.PlanStep{
				ID:          uuid.NewString(),
				PlanID:      plan.ID,
				ContextID:   plan.ContextID,
				Order:       absolute,
				ToolName:    draft.ToolName,
				Instruction: draft.Instruction,
				Group:       fmt.Sprintf("goal-%d", goal.GoalID),
				Status:      models.StepStatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			deps := map[int]bool{}
			if draft.DependsOn >= 0 {
				if target := goalStart + draft.DependsOn; target >= 0 && target < absolute {
					deps[target] = true
				}
			}
			if local == 0 {
				for _, depGoal := range goal.DependsOn {
					if last, ok := lastStepOfGoal[depGoal]; ok {
						deps[last] = true
					}
				}
			}
			if len(deps) > 0 {
				step.DependsOn = make([]int, 0, len(deps))
				for order := range deps {
					step.DependsOn = append(step.DependsOn, order)
				}
				sort.Ints(step.DependsOn)
			}
			steps = append(steps, step)
		}
		if len(steps) > goalStart {
			lastStepOfGoal[goal.GoalID] = len(steps) - 1
		}
	}
	return steps
}

// topoSortGoals orders goals so dependencies come first, breaking ties by
// ascending goal id. Goals whose dependencies never resolve (cyclic or
// dangling) are appended at the end in id order rather than lost.
func topoSortGoals(goals []models.Goal) []models.Goal {
	byID := make(map[int]models.Goal, len(goals))
	for _, goal := range goals {
		byID[goal.GoalID] = goal
	}

	placed := make(map[int]bool, len(goals))
	remaining := make([]models.Goal, len(goals))
	copy(remaining, goals)
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].GoalID < remaining[j].GoalID })

	var ordered []models.Goal
	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0:0]
		for _, goal := range remaining {
			ready := true
			for _, dep := range goal.DependsOn {
				if _, known := byID[dep]; known && !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, goal)
				placed[goal.GoalID] = true
				progressed = true
			} else {
				next = append(next, goal)
			}
		}
		remaining = next
		if !progressed {
			// Cycle: emit what is left in id order.
			ordered = append(ordered, remaining...)
			break
		}
	}
	return ordered
}
