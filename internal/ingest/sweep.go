package ingest

import (
	"context"
	"fmt"

	"github.com/JanDamek/jervis-sub011/internal/knowledge"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// Sweep runs the full-space pass for one connection: every stored item
// that no longer appears in the source listing transitions to REMOVED and
// loses its vector.
func (s *Supervisor) Sweep(ctx context.Context, conn *models.Connection) error {
	factory, ok := s.factories[conn.Kind]
	if !ok {
		return fmt.Errorf("no source factory for kind %q", conn.Kind)
	}
	source, err := factory(conn)
	if err != nil {
		return err
	}

	present, err := listPresent(ctx, source, conn)
	if err != nil {
		return err
	}
	stored, err := s.store.ListItems(ctx, conn.ID)
	if err != nil {
		return err
	}

	for _, item := range stored {
		if item.State == models.ItemStateRemoved || present[item.ExternalID] {
			continue
		}
		if _, err := s.store.TransitionItem(ctx, item.ID, item.State, models.ItemStateRemoved); err != nil {
			s.logger.Warn(ctx, "removing vanished item failed", "item_id", item.ID, "error", err)
			continue
		}
		s.recordTransition(item.State, models.ItemStateRemoved)

		version := item.IndexedVersion
		if version == 0 {
			version = item.ExternalVersion
		}
		stale := vectorID(item.ConnectionID, item.ExternalID, version)
		if err := s.vectors.DeleteByIDs(ctx, knowledge.CollectionText, []string{stale}); err != nil {
			s.logger.Warn(ctx, "deleting vector of removed item failed", "vector_id", stale, "error", err)
		}
	}
	return nil
}

// listPresent collects every external id currently visible in the source.
func listPresent(ctx context.Context, source Source, conn *models.Connection) (map[string]bool, error) {
	scopes := conn.Scopes
	if len(scopes) == 0 {
		var err error
		if scopes, err = source.ListScopes(ctx); err != nil {
			return nil, err
		}
	}
	present := make(map[string]bool)
	for _, scope := range scopes {
		cursor := ""
		for {
			page, err := source.ListItems(ctx, scope, cursor)
			if err != nil {
				return nil, err
			}
			for _, item := range page.Items {
				present[item.ExternalID] = true
			}
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}
	return present, nil
}
