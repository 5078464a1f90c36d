package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JanDamek/jervis-sub011/internal/knowledge"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// fakeSource serves items from memory.
type fakeSource struct {
	kind    models.SourceKind
	scopes  []string
	items   map[string][]SourceItem
	bodies  map[string]string
	listErr error
	bodyErr error
}

func (f *fakeSource) Kind() models.SourceKind { return f.kind }

func (f *fakeSource) ListScopes(context.Context) ([]string, error) {
	return f.scopes, f.listErr
}

func (f *fakeSource) ListItems(_ context.Context, scope, _ string) (*Page, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &Page{Items: f.items[scope]}, nil
}

func (f *fakeSource) FetchBody(_ context.Context, externalID string) (string, error) {
	if f.bodyErr != nil {
		return "", f.bodyErr
	}
	return f.bodies[externalID], nil
}

// fakeVectors records upserts and deletes.
type fakeVectors struct {
	mu      sync.Mutex
	docs    map[string]knowledge.VectorDoc
	deleted []string
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{docs: map[string]knowledge.VectorDoc{}}
}

func (f *fakeVectors) Upsert(_ context.Context, _ string, docs []knowledge.VectorDoc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return nil
}

func (f *fakeVectors) Search(context.Context, string, []float32, int, float32, map[string]string) ([]knowledge.VectorHit, error) {
	return nil, nil
}

func (f *fakeVectors) DeleteByIDs(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.docs, id)
		f.deleted = append(f.deleted, id)
	}
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func validConnection(kind models.SourceKind) *models.Connection {
	return &models.Connection{
		ID:         "conn-1",
		ClientID:   "acme",
		Kind:       kind,
		BaseURL:    "http://example.invalid",
		Scopes:     []string{"DOCS"},
		AuthStatus: models.AuthStatusValid,
	}
}

func factoryFor(source Source) SourceFactory {
	return func(*models.Connection) (Source, error) { return source, nil }
}

func TestPollerDiscoversNewItems(t *testing.T) {
	store := knowledge.NewMemoryStore()
	conn := validConnection(models.SourceKindWiki)
	if err := store.SaveConnection(context.Background(), conn); err != nil {
		t.Fatal(err)
	}
	source := &fakeSource{kind: models.SourceKindWiki, items: map[string][]SourceItem{
		"DOCS": {
			{ExternalID: "page-1", Version: 1, Title: "Welcome", Scope: "DOCS"},
			{ExternalID: "page-2", Version: 4, Title: "Runbook", Scope: "DOCS"},
		},
	}}

	p := NewPoller(models.SourceKindWiki, store, factoryFor(source), nil, nil)
	p.PollOnce(context.Background())

	items, err := store.ItemsByState(context.Background(), conn.ID, models.ItemStateNew, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d NEW items, want 2", len(items))
	}
	saved, err := store.GetConnection(context.Background(), conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.LastPolledAt.IsZero() || saved.LastSuccessfulSyncAt.IsZero() {
		t.Error("poll timestamps not updated")
	}
}

func TestPollerSkipsUnchangedItems(t *testing.T) {
	store := knowledge.NewMemoryStore()
	conn := validConnection(models.SourceKindWiki)
	store.SaveConnection(context.Background(), conn)
	store.SaveItem(context.Background(), &models.IngestItem{
		ID: "item-1", ConnectionID: conn.ID, ExternalID: "page-1",
		ExternalVersion: 2, State: models.ItemStateIndexed,
	})

	source := &fakeSource{kind: models.SourceKindWiki, items: map[string][]SourceItem{
		"DOCS": {{ExternalID: "page-1", Version: 2}},
	}}
	p := NewPoller(models.SourceKindWiki, store, factoryFor(source), nil, nil)
	p.PollOnce(context.Background())

	item, err := store.GetItem(context.Background(), conn.ID, "page-1")
	if err != nil {
		t.Fatal(err)
	}
	if item.State != models.ItemStateIndexed {
		t.Errorf("unchanged item moved to %s", item.State)
	}
}

func TestPollerAuthFailureInvalidatesConnection(t *testing.T) {
	store := knowledge.NewMemoryStore()
	conn := validConnection(models.SourceKindTracker)
	store.SaveConnection(context.Background(), conn)

	source := &fakeSource{kind: models.SourceKindTracker, listErr: ErrSourceAuth}
	p := NewPoller(models.SourceKindTracker, store, factoryFor(source), nil, nil)
	p.PollOnce(context.Background())

	saved, err := store.GetConnection(context.Background(), conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.AuthStatus != models.AuthStatusInvalid {
		t.Errorf("auth status = %s, want INVALID", saved.AuthStatus)
	}
	if saved.LastErrorMessage == "" {
		t.Error("lastErrorMessage not recorded")
	}
	if !saved.LastSuccessfulSyncAt.IsZero() {
		t.Error("failed poll must not update lastSuccessfulSyncAt")
	}
}

func TestAdaptiveDelay(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		want    time.Duration
	}{
		{30 * time.Second, pollDelayShort},
		{10 * time.Minute, pollDelayMedium},
		{45 * time.Minute, pollDelayLong},
	}
	for _, c := range cases {
		if got := adaptiveDelay(c.elapsed); got != c.want {
			t.Errorf("adaptiveDelay(%v) = %v, want %v", c.elapsed, got, c.want)
		}
	}
}

func TestIndexerVersionChangeReplacesVector(t *testing.T) {
	store := knowledge.NewMemoryStore()
	vectors := newFakeVectors()
	conn := validConnection(models.SourceKindWiki)
	store.SaveConnection(context.Background(), conn)

	// Version 2 is already indexed; the source now serves version 3.
	store.SaveItem(context.Background(), &models.IngestItem{
		ID: "item-1", ConnectionID: conn.ID, ExternalID: "page-1",
		ExternalVersion: 2, IndexedVersion: 2, State: models.ItemStateIndexed,
		CreatedAt: time.Now(),
	})
	vectors.Upsert(context.Background(), knowledge.CollectionText, []knowledge.VectorDoc{
		{ID: vectorID(conn.ID, "page-1", 2), Content: "old"},
	})

	source := &fakeSource{
		kind:   models.SourceKindWiki,
		items:  map[string][]SourceItem{"DOCS": {{ExternalID: "page-1", Version: 3, Title: "Runbook"}}},
		bodies: map[string]string{"page-1": "updated body"},
	}
	p := NewPoller(models.SourceKindWiki, store, factoryFor(source), nil, nil)
	p.PollOnce(context.Background())

	item, err := store.GetItem(context.Background(), conn.ID, "page-1")
	if err != nil {
		t.Fatal(err)
	}
	if item.State != models.ItemStateNew || item.ExternalVersion != 3 {
		t.Fatalf("after poll: state=%s version=%d", item.State, item.ExternalVersion)
	}

	ix := NewIndexer(conn, source, store, vectors, fakeEmbedder{}, nil, nil)
	worked, err := ix.RunOnce(context.Background())
	if err != nil || !worked {
		t.Fatalf("RunOnce = %v, %v", worked, err)
	}

	item, _ = store.GetItem(context.Background(), conn.ID, "page-1")
	if item.State != models.ItemStateIndexed {
		t.Errorf("state = %s, want INDEXED", item.State)
	}
	if item.IndexedVersion != 3 {
		t.Errorf("indexedVersion = %d, want 3", item.IndexedVersion)
	}
	if _, ok := vectors.docs[vectorID(conn.ID, "page-1", 3)]; !ok {
		t.Error("vector for version 3 missing")
	}
	if _, ok := vectors.docs[vectorID(conn.ID, "page-1", 2)]; ok {
		t.Error("stale vector for version 2 not deleted")
	}
}

func TestIndexerFailureRecordsError(t *testing.T) {
	store := knowledge.NewMemoryStore()
	conn := validConnection(models.SourceKindWiki)
	store.SaveItem(context.Background(), &models.IngestItem{
		ID: "item-1", ConnectionID: conn.ID, ExternalID: "page-1",
		ExternalVersion: 1, State: models.ItemStateNew,
	})

	source := &fakeSource{kind: models.SourceKindWiki, bodyErr: errors.New("boom")}
	ix := NewIndexer(conn, source, store, newFakeVectors(), fakeEmbedder{}, nil, nil)
	if _, err := ix.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	item, err := store.GetItem(context.Background(), conn.ID, "page-1")
	if err != nil {
		t.Fatal(err)
	}
	if item.State != models.ItemStateFailed {
		t.Errorf("state = %s, want FAILED", item.State)
	}
	if item.AttemptCount != 1 || item.LastError == "" {
		t.Errorf("attemptCount=%d lastError=%q", item.AttemptCount, item.LastError)
	}
}

func TestIndexerSkipsClaimedItems(t *testing.T) {
	store := knowledge.NewMemoryStore()
	conn := validConnection(models.SourceKindWiki)
	store.SaveItem(context.Background(), &models.IngestItem{
		ID: "item-1", ConnectionID: conn.ID, ExternalID: "page-1",
		State: models.ItemStateNew,
	})
	// Another worker wins the claim between listing and CAS.
	if _, err := store.TransitionItem(context.Background(), "item-1", models.ItemStateNew, models.ItemStateIndexing); err != nil {
		t.Fatal(err)
	}

	source := &fakeSource{kind: models.SourceKindWiki, bodies: map[string]string{"page-1": "body"}}
	ix := NewIndexer(conn, source, store, newFakeVectors(), fakeEmbedder{}, nil, nil)

	// ItemsByState no longer returns the claimed item, so nothing runs.
	worked, err := ix.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if worked {
		t.Error("claimed item must not be re-processed")
	}
	item, _ := store.GetItem(context.Background(), conn.ID, "page-1")
	if item.State != models.ItemStateIndexing {
		t.Errorf("state = %s, want INDEXING untouched", item.State)
	}
}

func TestSweepRemovesVanishedItems(t *testing.T) {
	store := knowledge.NewMemoryStore()
	vectors := newFakeVectors()
	conn := validConnection(models.SourceKindWiki)
	store.SaveConnection(context.Background(), conn)

	store.SaveItem(context.Background(), &models.IngestItem{
		ID: "item-1", ConnectionID: conn.ID, ExternalID: "page-1",
		ExternalVersion: 1, IndexedVersion: 1, State: models.ItemStateIndexed,
	})
	store.SaveItem(context.Background(), &models.IngestItem{
		ID: "item-2", ConnectionID: conn.ID, ExternalID: "page-2",
		ExternalVersion: 1, IndexedVersion: 1, State: models.ItemStateIndexed,
	})
	vectors.Upsert(context.Background(), knowledge.CollectionText, []knowledge.VectorDoc{
		{ID: vectorID(conn.ID, "page-2", 1)},
	})

	// page-2 vanished from the source.
	source := &fakeSource{kind: models.SourceKindWiki, items: map[string][]SourceItem{
		"DOCS": {{ExternalID: "page-1", Version: 1}},
	}}
	sup := NewSupervisor(store, vectors, fakeEmbedder{},
		map[models.SourceKind]SourceFactory{models.SourceKindWiki: factoryFor(source)},
		Options{}, nil, nil)

	if err := sup.Sweep(context.Background(), conn); err != nil {
		t.Fatal(err)
	}

	kept, _ := store.GetItem(context.Background(), conn.ID, "page-1")
	if kept.State != models.ItemStateIndexed {
		t.Errorf("present item moved to %s", kept.State)
	}
	removed, _ := store.GetItem(context.Background(), conn.ID, "page-2")
	if removed.State != models.ItemStateRemoved {
		t.Errorf("vanished item state = %s, want REMOVED", removed.State)
	}
	if len(vectors.deleted) != 1 || vectors.deleted[0] != vectorID(conn.ID, "page-2", 1) {
		t.Errorf("deleted vectors = %v", vectors.deleted)
	}
}

func TestSupervisorRestartsCrashedLoop(t *testing.T) {
	store := knowledge.NewMemoryStore()
	sup := NewSupervisor(store, newFakeVectors(), fakeEmbedder{}, nil, Options{}, nil, nil)
	sup.RestartDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	runs := 0
	sup.supervise(ctx, "crashy", func(context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		panic("boom")
	})

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := runs
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("loop was not restarted after crash")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	sup.Stop()
}
