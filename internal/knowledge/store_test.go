package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

func documentStores(t *testing.T) map[string]DocumentStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]DocumentStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestItemTransitionCAS(t *testing.T) {
	for name, store := range documentStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			item := &models.IngestItem{
				ID:           "item-1",
				ConnectionID: "conn-1",
				ExternalID:   "ext-1",
				State:        models.ItemStateNew,
			}
			if err := store.SaveItem(ctx, item); err != nil {
				t.Fatalf("SaveItem: %v", err)
			}

			updated, err := store.TransitionItem(ctx, "item-1", models.ItemStateNew, models.ItemStateIndexing)
			if err != nil {
				t.Fatalf("first transition: %v", err)
			}
			if updated.State != models.ItemStateIndexing {
				t.Errorf("state = %s, want INDEXING", updated.State)
			}

			// A second worker expecting NEW must lose the race.
			if _, err := store.TransitionItem(ctx, "item-1", models.ItemStateNew, models.ItemStateIndexing); !errors.Is(err, ErrConflict) {
				t.Errorf("want ErrConflict, got %v", err)
			}

			// Illegal transitions are rejected outright.
			if _, err := store.TransitionItem(ctx, "item-1", models.ItemStateIndexing, models.ItemStateNew); err == nil {
				t.Error("INDEXING -> NEW should be rejected")
			}

			if _, err := store.TransitionItem(ctx, "item-1", models.ItemStateIndexing, models.ItemStateIndexed); err != nil {
				t.Errorf("INDEXING -> INDEXED: %v", err)
			}

			// Removal is allowed from any state.
			if _, err := store.TransitionItem(ctx, "item-1", models.ItemStateIndexed, models.ItemStateRemoved); err != nil {
				t.Errorf("INDEXED -> REMOVED: %v", err)
			}
		})
	}
}

func TestItemTransitionMissing(t *testing.T) {
	for name, store := range documentStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.TransitionItem(context.Background(), "nope", models.ItemStateNew, models.ItemStateIndexing)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("want ErrNotFound, got %v", err)
			}
		})
	}
}

func TestItemsByStateOrder(t *testing.T) {
	for name, store := range documentStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().Add(-time.Hour)
			for i, id := range []string{"c", "a", "b"} {
				item := &models.IngestItem{
					ID:           id,
					ConnectionID: "conn-1",
					ExternalID:   "ext-" + id,
					State:        models.ItemStateNew,
					CreatedAt:    base.Add(time.Duration(i) * time.Minute),
				}
				if err := store.SaveItem(ctx, item); err != nil {
					t.Fatalf("SaveItem: %v", err)
				}
			}

			items, err := store.ItemsByState(ctx, "conn-1", models.ItemStateNew, 2)
			if err != nil {
				t.Fatalf("ItemsByState: %v", err)
			}
			if len(items) != 2 || items[0].ID != "c" || items[1].ID != "a" {
				ids := make([]string, len(items))
				for i, item := range items {
					ids[i] = item.ID
				}
				t.Errorf("want oldest-first [c a], got %v", ids)
			}
		})
	}
}

func TestPlansForContextOrder(t *testing.T) {
	for name, store := range documentStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now()
			for i, id := range []string{"plan-2", "plan-1"} {
				plan := &models.Plan{
					ID:        id,
					ContextID: "ctx-1",
					Status:    models.PlanStatusCreated,
					CreatedAt: base.Add(time.Duration(1-i) * time.Minute),
				}
				if err := store.SavePlan(ctx, plan); err != nil {
					t.Fatalf("SavePlan: %v", err)
				}
			}
			plans, err := store.PlansForContext(ctx, "ctx-1")
			if err != nil {
				t.Fatalf("PlansForContext: %v", err)
			}
			if len(plans) != 2 || plans[0].ID != "plan-1" {
				t.Errorf("plans should come back in creation order, got %v, %v", plans[0].ID, plans[1].ID)
			}
		})
	}
}

func TestChromemUpsertSearchDelete(t *testing.T) {
	store, err := NewChromemStore("")
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	ctx := context.Background()

	docs := []VectorDoc{
		{ID: "d1", Content: "alpha", Vector: []float32{1, 0, 0}, Metadata: map[string]string{"clientId": "c1"}},
		{ID: "d2", Content: "beta", Vector: []float32{0, 1, 0}, Metadata: map[string]string{"clientId": "c2"}},
	}
	if err := store.Upsert(ctx, CollectionText, docs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := store.Search(ctx, CollectionText, []float32{1, 0, 0}, 10, 0.5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "d1" {
		t.Fatalf("want single hit d1, got %+v", hits)
	}

	// Scope filter keeps only matching metadata.
	hits, err = store.Search(ctx, CollectionText, []float32{0, 1, 0}, 10, 0, map[string]string{"clientId": "c2"})
	if err != nil {
		t.Fatalf("filtered search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "d2" {
		t.Fatalf("filter should keep only c2 docs, got %+v", hits)
	}

	if err := store.DeleteByIDs(ctx, CollectionText, []string{"d1"}); err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	hits, err = store.Search(ctx, CollectionText, []float32{1, 0, 0}, 10, 0, nil)
	if err != nil {
		t.Fatalf("search after delete: %v", err)
	}
	for _, hit := range hits {
		if hit.ID == "d1" {
			t.Error("d1 should be gone after delete")
		}
	}
}
