package tools

import (
	"context"
	"strings"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// AskUserTool requests input from the user. The step completes; the final
// answer is flagged as needing input.
type AskUserTool struct{}

// Name returns the tool name.
func (t *AskUserTool) Name() string { return "ASK_USER" }

// Description returns the catalog line.
func (t *AskUserTool) Description() string {
	return "Ask the user a clarifying question when the request cannot be completed without more information. Instruction: the question to ask."
}

// Execute returns an Ask result carrying the question.
func (t *AskUserTool) Execute(ctx context.Context, _ *models.Plan, instruction, _ string) (*models.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	question := strings.TrimSpace(instruction)
	if question == "" {
		question = "Additional input is required to continue."
	}
	return models.Ask(question), nil
}

// StopTool aborts the plan. A safety valve for requests that must not be
// carried out or cannot possibly succeed.
type StopTool struct{}

// Name returns the tool name.
func (t *StopTool) Name() string { return "STOP" }

// Description returns the catalog line.
func (t *StopTool) Description() string {
	return "Abort the plan when the request cannot or must not be fulfilled. Instruction: the reason for stopping."
}

// Execute returns a Stop result carrying the reason.
func (t *StopTool) Execute(ctx context.Context, _ *models.Plan, instruction, _ string) (*models.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(instruction)
	if reason == "" {
		reason = "Execution stopped."
	}
	return models.Stop("", reason), nil
}
