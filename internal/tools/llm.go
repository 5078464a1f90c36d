package tools

import (
	"context"

	"github.com/JanDamek/jervis-sub011/internal/gateway"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// Completer is the gateway surface LLM_ANSWER needs.
type Completer interface {
	Complete(ctx context.Context, promptType string, vars map[string]string, opts gateway.Options) (*gateway.Result, error)
}

// LLMAnswerTool answers a step instruction directly from a language model,
// using the outputs of earlier steps as context. Routed through the
// finalizing usage tag.
type LLMAnswerTool struct {
	Gateway Completer
}

// Name returns the tool name.
func (t *LLMAnswerTool) Name() string { return "LLM_ANSWER" }

// Description returns the catalog line.
func (t *LLMAnswerTool) Description() string {
	return "Answer the instruction using a language model and the outputs of earlier steps. Use for synthesis, summarization, and reasoning over gathered material."
}

// Execute runs the model call. Gateway failures are recoverable: the
// planner may retry with a different approach.
func (t *LLMAnswerTool) Execute(ctx context.Context, plan *models.Plan, instruction, stepContext string) (*models.ToolResult, error) {
	vars := map[string]string{
		"instruction":  instruction,
		"stepContext":  stepContext,
		"planQuestion": plan.EnglishQuestion,
	}
	result, err := t.Gateway.Complete(ctx, "llm_answer", vars, gateway.Options{})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return models.ErrorResult("", "model call failed: "+err.Error()), nil
	}
	return models.Ok(result.Text), nil
}
