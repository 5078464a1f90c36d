package tools

import (
	"context"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// Searcher is the retrieval surface KNOWLEDGE_SEARCH needs: a query in,
// a formatted discovery context out.
type Searcher interface {
	Search(ctx context.Context, query, clientID, projectID string) (string, error)
}

// KnowledgeSearchTool queries the vector collections for material related
// to the instruction.
type KnowledgeSearchTool struct {
	Searcher  Searcher
	ClientID  string
	ProjectID string
}

// Name returns the tool name.
func (t *KnowledgeSearchTool) Name() string { return "KNOWLEDGE_SEARCH" }

// Description returns the catalog line.
func (t *KnowledgeSearchTool) Description() string {
	return "Search the indexed knowledge base (documents, wiki pages, issues, code) for content related to the instruction."
}

// Execute runs the search. A search failure is recoverable; the planner
// can route around missing context.
func (t *KnowledgeSearchTool) Execute(ctx context.Context, _ *models.Plan, instruction, _ string) (*models.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := t.Searcher.Search(ctx, instruction, t.ClientID, t.ProjectID)
	if err != nil {
		return models.ErrorResult("", "knowledge search failed: "+err.Error()), nil
	}
	return models.Ok(result), nil
}
