// Package retrieval turns a search phrase into discovery context for the
// planner by querying the text and code vector collections concurrently.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/JanDamek/jervis-sub011/internal/knowledge"
	"github.com/JanDamek/jervis-sub011/internal/observability"
)

const (
	// perCollectionTopK is how many hits each collection contributes
	// before merging.
	perCollectionTopK = 10

	// maxMergedResults caps the merged result list.
	maxMergedResults = 15

	// maxContentChars truncates hit content before prompt injection.
	maxContentChars = 2000
)

// noContextFound is returned verbatim when both collections come up empty.
const noContextFound = "No relevant context found."

// Embedder derives an embedding vector for a query.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Query scopes one discovery request.
type Query struct {
	// Text is the search phrase.
	Text string

	// ClientID and ProjectID filter hits to the caller's scope unless
	// Global is set.
	ClientID  string
	ProjectID string
	Global    bool

	// ScoreThreshold drops hits scoring below it.
	ScoreThreshold float32
}

// Service performs discovery searches.
type Service struct {
	embedder Embedder
	vectors  knowledge.VectorStore
	logger   *observability.Logger
}

// NewService creates the retrieval service.
func NewService(embedder Embedder, vectors knowledge.VectorStore, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Service{embedder: embedder, vectors: vectors, logger: logger}
}

// Discover embeds the query, searches both collections concurrently, and
// formats the merged hits as prose. An embedding failure yields an empty
// context: discovery must never abort planning.
func (s *Service) Discover(ctx context.Context, q Query) string {
	vector, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		s.logger.Warn(ctx, "query embedding failed, continuing without discovery context", "error", err)
		return ""
	}

	filter := map[string]string{}
	if !q.Global {
		if q.ClientID != "" {
			filter["clientId"] = q.ClientID
		}
		if q.ProjectID != "" {
			filter["projectId"] = q.ProjectID
		}
	}
	if len(filter) == 0 {
		filter = nil
	}

	var mu sync.Mutex
	var merged []knowledge.VectorHit
	group, groupCtx := errgroup.WithContext(ctx)
	for _, collection := range []string{knowledge.CollectionText, knowledge.CollectionCode} {
		collection := collection
		group.Go(func() error {
			hits, err := s.vectors.Search(groupCtx, collection, vector, perCollectionTopK, q.ScoreThreshold, filter)
			if err != nil {
				return fmt.Errorf("search %s: %w", collection, err)
			}
			mu.Lock()
			merged = append(merged, hits...)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		s.logger.Warn(ctx, "vector search failed, continuing without discovery context", "error", err)
		return ""
	}

	if len(merged) == 0 {
		return noContextFound
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > maxMergedResults {
		merged = merged[:maxMergedResults]
	}

	var b strings.Builder
	for i, hit := range merged {
		if i > 0 {
			b.WriteString("\n\n")
		}
		content := hit.Content
		if len(content) > maxContentChars {
			content = content[:maxContentChars]
		}
		fmt.Fprintf(&b, "Source %d (score=%.3f) path=%s : %s", i+1, hit.Score, hitPath(hit), content)
	}
	return b.String()
}

// Search adapts Discover to the tool-facing contract.
func (s *Service) Search(ctx context.Context, query, clientID, projectID string) (string, error) {
	return s.Discover(ctx, Query{Text: query, ClientID: clientID, ProjectID: projectID}), nil
}

func hitPath(hit knowledge.VectorHit) string {
	if path, ok := hit.Metadata["path"]; ok && path != "" {
		return path
	}
	if title, ok := hit.Metadata["title"]; ok && title != "" {
		return title
	}
	return hit.ID
}
