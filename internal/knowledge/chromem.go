package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemStore implements VectorStore over the embedded chromem-go engine.
// Collections are created lazily on first use. Vectors are always supplied
// by the caller; the engine's own embedding hook is never invoked.
type ChromemStore struct {
	db *chromem.DB

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

var _ VectorStore = (*ChromemStore)(nil)

// NewChromemStore creates the store. With a persistPath the index survives
// restarts; an empty path keeps it in memory.
func NewChromemStore(persistPath string) (*ChromemStore, error) {
	var db *chromem.DB
	if persistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(filepath.Join(persistPath, "vectors"), false)
		if err != nil {
			return nil, fmt.Errorf("open persistent vector store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &ChromemStore{db: db, collections: make(map[string]*chromem.Collection)}, nil
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}
	col, err := s.db.GetOrCreateCollection(name, nil, func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("collection %s has no embedder; vectors must be supplied", name)
	})
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

// Upsert writes docs into the collection. chromem replaces documents with
// the same id.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, docs []VectorDoc) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		err := col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Vector,
			Metadata:  doc.Metadata,
		})
		if err != nil {
			return fmt.Errorf("upsert document %s into %s: %w", doc.ID, collection, err)
		}
	}
	return nil
}

// Search runs a similarity query. Results below minScore are dropped.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, topK int, minScore float32, filter map[string]string) ([]VectorHit, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	// chromem rejects queries asking for more results than stored docs.
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	hits := make([]VectorHit, 0, len(results))
	for _, r := range results {
		if r.Similarity < minScore {
			continue
		}
		hits = append(hits, VectorHit{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: r.Metadata,
		})
	}
	return hits, nil
}

// DeleteByIDs removes documents from the collection.
func (s *ChromemStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete from collection %s: %w", collection, err)
	}
	return nil
}
