package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/JanDamek/jervis-sub011/internal/knowledge"
	"github.com/JanDamek/jervis-sub011/internal/observability"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

const (
	indexBatchSize = 16
	indexIdleMin   = 30 * time.Second
	indexIdleMax   = 60 * time.Second
)

// Embedder derives the vector for an item body.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Indexer drains NEW items for one connection: claim via CAS, fetch the
// body, embed, upsert the vector, and settle the item INDEXED or FAILED.
type Indexer struct {
	conn     *models.Connection
	source   Source
	store    knowledge.DocumentStore
	vectors  knowledge.VectorStore
	embedder Embedder
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewIndexer creates an indexer for one connection.
func NewIndexer(conn *models.Connection, source Source, store knowledge.DocumentStore, vectors knowledge.VectorStore, embedder Embedder, logger *observability.Logger, metrics *observability.Metrics) *Indexer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Indexer{
		conn:     conn,
		source:   source,
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run loops until ctx is cancelled, sleeping 30-60s whenever the NEW
// queue is empty.
func (ix *Indexer) Run(ctx context.Context) error {
	for {
		worked, err := ix.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ix.logger.Warn(ctx, "index pass failed", "connection_id", ix.conn.ID, "error", err)
		}
		if !worked {
			if err := sleepCtx(ctx, idleInterval()); err != nil {
				return err
			}
		}
	}
}

// RunOnce processes one batch of NEW items, oldest first. It reports
// whether any item was picked up.
func (ix *Indexer) RunOnce(ctx context.Context) (bool, error) {
	items, err := ix.store.ItemsByState(ctx, ix.conn.ID, models.ItemStateNew, indexBatchSize)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		ix.indexOne(ctx, item)
	}
	return len(items) > 0, nil
}

func (ix *Indexer) indexOne(ctx context.Context, item *models.IngestItem) {
	claimed, err := ix.store.TransitionItem(ctx, item.ID, models.ItemStateNew, models.ItemStateIndexing)
	if errors.Is(err, knowledge.ErrConflict) {
		// Another indexer or a poller got there first.
		return
	}
	if err != nil {
		ix.logger.Warn(ctx, "claiming item failed", "item_id", item.ID, "error", err)
		return
	}
	ix.recordTransition(models.ItemStateNew, models.ItemStateIndexing)

	if err := ix.index(ctx, claimed); err != nil {
		ix.settle(ctx, claimed, models.ItemStateFailed, err)
		return
	}
	ix.settle(ctx, claimed, models.ItemStateIndexed, nil)
}

func (ix *Indexer) index(ctx context.Context, item *models.IngestItem) error {
	body, err := ix.source.FetchBody(ctx, item.ExternalID)
	if err != nil {
		return fmt.Errorf("fetch body: %w", err)
	}
	vector, err := ix.embedder.Embed(ctx, body)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	if item.IndexedVersion > 0 && item.IndexedVersion != item.ExternalVersion {
		stale := vectorID(item.ConnectionID, item.ExternalID, item.IndexedVersion)
		if err := ix.vectors.DeleteByIDs(ctx, knowledge.CollectionText, []string{stale}); err != nil {
			ix.logger.Warn(ctx, "deleting stale vector failed", "vector_id", stale, "error", err)
		}
	}

	doc := knowledge.VectorDoc{
		ID:      vectorID(item.ConnectionID, item.ExternalID, item.ExternalVersion),
		Content: body,
		Vector:  vector,
		Metadata: map[string]string{
			"clientId":     ix.conn.ClientID,
			"projectId":    ix.conn.ProjectID,
			"connectionId": item.ConnectionID,
			"externalId":   item.ExternalID,
			"path":         item.Title,
			"scope":        item.Scope,
		},
	}
	return ix.vectors.Upsert(ctx, knowledge.CollectionText, []knowledge.VectorDoc{doc})
}

// settle records the terminal transition for this attempt.
func (ix *Indexer) settle(ctx context.Context, item *models.IngestItem, state models.ItemState, cause error) {
	updated, err := ix.store.TransitionItem(ctx, item.ID, models.ItemStateIndexing, state)
	if err != nil {
		ix.logger.Warn(ctx, "settling item failed", "item_id", item.ID, "state", state, "error", err)
		return
	}
	ix.recordTransition(models.ItemStateIndexing, state)

	if cause != nil {
		updated.LastError = cause.Error()
		updated.AttemptCount++
		ix.logger.Warn(ctx, "indexing failed",
			"item_id", item.ID, "external_id", item.ExternalID, "attempts", updated.AttemptCount, "error", cause)
	} else {
		updated.LastError = ""
		updated.IndexedVersion = updated.ExternalVersion
	}
	updated.UpdatedAt = time.Now()
	if err := ix.store.SaveItem(ctx, updated); err != nil {
		ix.logger.Warn(ctx, "saving item failed", "item_id", item.ID, "error", err)
	}
}

func (ix *Indexer) recordTransition(from, to models.ItemState) {
	if ix.metrics != nil {
		ix.metrics.ItemTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

func vectorID(connectionID, externalID string, version int64) string {
	return fmt.Sprintf("%s/%s/v%d", connectionID, externalID, version)
}

func idleInterval() time.Duration {
	return indexIdleMin + rand.N(indexIdleMax-indexIdleMin)
}
