package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JanDamek/jervis-sub011/internal/knowledge"
	"github.com/JanDamek/jervis-sub011/internal/observability"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

const (
	defaultStartupDelay = time.Minute

	// Adaptive delay tiers keyed on how long the poll cycle ran.
	pollDelayShort  = 10 * time.Minute
	pollDelayMedium = 30 * time.Minute
	pollDelayLong   = time.Hour

	pollRunShort  = 5 * time.Minute
	pollRunMedium = 30 * time.Minute
)

// SourceFactory builds a Source for a connection.
type SourceFactory func(conn *models.Connection) (Source, error)

// Poller discovers changed items for one source kind. Each cycle it picks
// the VALID connection with the oldest lastPolledAt and reconciles every
// scope's listing against the stored ingest items.
type Poller struct {
	kind    models.SourceKind
	store   knowledge.DocumentStore
	sources SourceFactory
	logger  *observability.Logger
	metrics *observability.Metrics

	// StartupDelay postpones the first cycle; tests shorten it.
	StartupDelay time.Duration
}

// NewPoller creates a poller for one source kind.
func NewPoller(kind models.SourceKind, store knowledge.DocumentStore, sources SourceFactory, logger *observability.Logger, metrics *observability.Metrics) *Poller {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Poller{
		kind:         kind,
		store:        store,
		sources:      sources,
		logger:       logger,
		metrics:      metrics,
		StartupDelay: defaultStartupDelay,
	}
}

// Run loops until ctx is cancelled, sleeping the adaptive delay between
// cycles.
func (p *Poller) Run(ctx context.Context) error {
	if err := sleepCtx(ctx, p.StartupDelay); err != nil {
		return err
	}
	for {
		delay := p.PollOnce(ctx)
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

// PollOnce runs one cycle and returns the delay before the next one.
func (p *Poller) PollOnce(ctx context.Context) time.Duration {
	conn, err := p.oldestEligible(ctx)
	if err != nil {
		p.logger.Warn(ctx, "listing connections failed", "kind", p.kind, "error", err)
		return pollDelayShort
	}
	if conn == nil {
		return pollDelayShort
	}

	started := time.Now()
	pollErr := p.pollConnection(ctx, conn)

	now := time.Now()
	conn.LastPolledAt = now
	status := "success"
	switch {
	case pollErr == nil:
		conn.LastSuccessfulSyncAt = now
		conn.LastErrorMessage = ""
	case errors.Is(pollErr, ErrSourceAuth):
		status = "auth_error"
		conn.AuthStatus = models.AuthStatusInvalid
		conn.LastErrorMessage = pollErr.Error()
		p.logger.Error(ctx, "source auth failed, connection disabled",
			"connection_id", conn.ID, "kind", p.kind, "error", pollErr)
	default:
		status = "error"
		conn.LastErrorMessage = pollErr.Error()
		p.logger.Warn(ctx, "poll cycle failed",
			"connection_id", conn.ID, "kind", p.kind, "error", pollErr)
	}
	if err := p.store.SaveConnection(ctx, conn); err != nil {
		p.logger.Warn(ctx, "saving connection failed", "connection_id", conn.ID, "error", err)
	}
	if p.metrics != nil {
		p.metrics.PollerRuns.WithLabelValues(string(p.kind), status).Inc()
	}

	return adaptiveDelay(time.Since(started))
}

func (p *Poller) pollConnection(ctx context.Context, conn *models.Connection) error {
	source, err := p.sources(conn)
	if err != nil {
		return err
	}
	scopes := conn.Scopes
	if len(scopes) == 0 {
		if scopes, err = source.ListScopes(ctx); err != nil {
			return fmt.Errorf("list scopes: %w", err)
		}
	}
	for _, scope := range scopes {
		cursor := ""
		for {
			page, err := source.ListItems(ctx, scope, cursor)
			if err != nil {
				return fmt.Errorf("list scope %q: %w", scope, err)
			}
			for _, item := range page.Items {
				if err := p.reconcile(ctx, conn, item); err != nil {
					p.logger.Warn(ctx, "reconciling item failed",
						"connection_id", conn.ID, "external_id", item.ExternalID, "error", err)
				}
			}
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}
	return nil
}

// reconcile compares one listed item with its stored record: unknown items
// and changed versions become NEW, unchanged ones are skipped.
func (p *Poller) reconcile(ctx context.Context, conn *models.Connection, item SourceItem) error {
	existing, err := p.store.GetItem(ctx, conn.ID, item.ExternalID)
	if errors.Is(err, knowledge.ErrNotFound) {
		now := time.Now()
		return p.store.SaveItem(ctx, &models.IngestItem{
			ID:              uuid.NewString(),
			ConnectionID:    conn.ID,
			ExternalID:      item.ExternalID,
			ExternalVersion: item.Version,
			ContentHash:     item.ContentHash,
			Title:           item.Title,
			Scope:           item.Scope,
			State:           models.ItemStateNew,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	if err != nil {
		return err
	}

	changed := item.Version > existing.ExternalVersion ||
		(item.ContentHash != "" && item.ContentHash != existing.ContentHash)
	if !changed {
		return nil
	}

	switch existing.State {
	case models.ItemStateIndexed, models.ItemStateFailed:
		updated, err := p.store.TransitionItem(ctx, existing.ID, existing.State, models.ItemStateNew)
		if err != nil {
			return err
		}
		p.recordTransition(existing.State, models.ItemStateNew)
		existing = updated
	case models.ItemStateIndexing:
		// An indexer holds the item; the next cycle picks the change up.
		return nil
	}

	existing.ExternalVersion = item.Version
	existing.ContentHash = item.ContentHash
	existing.Title = item.Title
	existing.AttemptCount = 0
	existing.LastError = ""
	existing.UpdatedAt = time.Now()
	return p.store.SaveItem(ctx, existing)
}

func (p *Poller) oldestEligible(ctx context.Context) (*models.Connection, error) {
	connections, err := p.store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	var oldest *models.Connection
	for _, conn := range connections {
		if conn.Kind != p.kind || conn.AuthStatus != models.AuthStatusValid {
			continue
		}
		if oldest == nil || conn.LastPolledAt.Before(oldest.LastPolledAt) {
			oldest = conn
		}
	}
	return oldest, nil
}

func (p *Poller) recordTransition(from, to models.ItemState) {
	if p.metrics != nil {
		p.metrics.ItemTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

// adaptiveDelay maps cycle duration to the next poll interval: fast runs
// poll every 10 minutes, slow ones back off to an hour.
func adaptiveDelay(elapsed time.Duration) time.Duration {
	switch {
	case elapsed < pollRunShort:
		return pollDelayShort
	case elapsed < pollRunMedium:
		return pollDelayMedium
	default:
		return pollDelayLong
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
