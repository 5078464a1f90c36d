// Package tools defines the tool contract and the ordered registry whose
// description catalog the planner interpolates into prompts.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// ErrUnknownTool means a step referenced a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is one schedulable operation. Execute receives the plan read-only,
// the planner-written instruction for this step, and a prose summary of
// earlier steps. A returned error is an exception that fails the plan;
// recoverable failures are expressed as ErrorResult values instead.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, plan *models.Plan, instruction, stepContext string) (*models.ToolResult, error)
}

// Registry holds the registered tools in registration order. Immutable
// after construction.
type Registry struct {
	ordered      []Tool
	byName       map[string]Tool
	descriptions string
	names        string
}

// NewRegistry validates and indexes the given tools. Every tool needs a
// non-blank description; the catalog strings are computed once here.
func NewRegistry(registered ...Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]Tool, len(registered))}
	var descriptions, names []string
	for _, tool := range registered {
		name := tool.Name()
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if strings.TrimSpace(tool.Description()) == "" {
			return nil, fmt.Errorf("tool %s has no description", name)
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %s", name)
		}
		r.byName[name] = tool
		r.ordered = append(r.ordered, tool)
		descriptions = append(descriptions, fmt.Sprintf("%s: %s", name, tool.Description()))
		names = append(names, name)
	}
	r.descriptions = strings.Join(descriptions, "\n")
	r.names = strings.Join(names, ", ")
	return r, nil
}

// ByName resolves a tool or returns ErrUnknownTool.
func (r *Registry) ByName(name string) (Tool, error) {
	tool, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return tool, nil
}

// Descriptions returns the newline-separated "<NAME>: <description>"
// catalog in registration order.
func (r *Registry) Descriptions() string {
	return r.descriptions
}

// Names returns the comma-separated tool names in registration order.
func (r *Registry) Names() string {
	return r.names
}
