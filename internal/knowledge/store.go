// Package knowledge provides uniform access to the durable document store
// and the vector store shared by retrieval and ingestion.
package knowledge

import (
	"context"
	"errors"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// Vector collection names. Text and code embeddings live in separate
// collections and are searched concurrently by retrieval.
const (
	CollectionText = "text_embeddings"
	CollectionCode = "code_embeddings"
)

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict means a compare-and-set transition lost the race: the
	// record's current state differs from the expected one.
	ErrConflict = errors.New("state transition conflict")
)

// DocumentStore persists task contexts, plans, source connections, and
// ingest items. Implementations must make TransitionItem linearizable so
// at most one indexer can hold INDEXING on an item.
type DocumentStore interface {
	SaveTaskContext(ctx context.Context, tc *models.TaskContext) error
	GetTaskContext(ctx context.Context, id string) (*models.TaskContext, error)

	SavePlan(ctx context.Context, plan *models.Plan) error
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	PlansForContext(ctx context.Context, contextID string) ([]*models.Plan, error)

	SaveConnection(ctx context.Context, conn *models.Connection) error
	GetConnection(ctx context.Context, id string) (*models.Connection, error)
	ListConnections(ctx context.Context) ([]*models.Connection, error)

	SaveItem(ctx context.Context, item *models.IngestItem) error
	GetItem(ctx context.Context, connectionID, externalID string) (*models.IngestItem, error)

	// ItemsByState returns up to limit items for the connection in the
	// given state, oldest first.
	ItemsByState(ctx context.Context, connectionID string, state models.ItemState, limit int) ([]*models.IngestItem, error)

	// ListItems returns every tracked item for the connection, for full
	// sweeps that detect removals.
	ListItems(ctx context.Context, connectionID string) ([]*models.IngestItem, error)

	// TransitionItem moves the item from expected to next atomically and
	// returns the updated record. A mismatch on the current state yields
	// ErrConflict; an illegal transition yields a plain error.
	TransitionItem(ctx context.Context, id string, expected, next models.ItemState) (*models.IngestItem, error)
}

// VectorDoc is one entry written to a vector collection.
type VectorDoc struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// VectorHit is one search result.
type VectorHit struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]string
}

// VectorStore serves similarity search over named collections. The filter
// supports equality on metadata keys, notably clientId and projectId.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, docs []VectorDoc) error
	Search(ctx context.Context, collection string, vector []float32, topK int, minScore float32, filter map[string]string) ([]VectorHit, error)
	DeleteByIDs(ctx context.Context, collection string, ids []string) error
}
