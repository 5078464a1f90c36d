package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JanDamek/jervis-sub011/internal/knowledge"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

type fakeVectors struct {
	hits map[string][]knowledge.VectorHit
	err  error
}

func (f *fakeVectors) Upsert(context.Context, string, []knowledge.VectorDoc) error { return nil }
func (f *fakeVectors) DeleteByIDs(context.Context, string, []string) error         { return nil }
func (f *fakeVectors) Search(_ context.Context, collection string, _ []float32, _ int, _ float32, _ map[string]string) ([]knowledge.VectorHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[collection], nil
}

func TestDiscoverMergesAndFormats(t *testing.T) {
	vectors := &fakeVectors{hits: map[string][]knowledge.VectorHit{
		knowledge.CollectionText: {
			{ID: "t1", Score: 0.9, Content: "text hit", Metadata: map[string]string{"path": "docs/a.md"}},
		},
		knowledge.CollectionCode: {
			{ID: "c1", Score: 0.95, Content: "code hit", Metadata: map[string]string{"path": "src/main.go"}},
			{ID: "c2", Score: 0.4, Content: "weak hit"},
		},
	}}
	s := NewService(&fakeEmbedder{vector: []float32{1}}, vectors, nil)

	got := s.Discover(context.Background(), Query{Text: "how does main work"})

	// Highest score first, numbered from 1.
	if !strings.HasPrefix(got, "Source 1 (score=0.950) path=src/main.go : code hit") {
		t.Errorf("best hit should lead:\n%s", got)
	}
	if !strings.Contains(got, "Source 2 (score=0.900) path=docs/a.md : text hit") {
		t.Errorf("text hit missing:\n%s", got)
	}
	if !strings.Contains(got, "Source 3") {
		t.Errorf("weak hit should still appear (threshold is the store's job):\n%s", got)
	}
}

func TestDiscoverTruncatesContent(t *testing.T) {
	long := strings.Repeat("x", 3000)
	vectors := &fakeVectors{hits: map[string][]knowledge.VectorHit{
		knowledge.CollectionText: {{ID: "t1", Score: 0.9, Content: long}},
	}}
	s := NewService(&fakeEmbedder{vector: []float32{1}}, vectors, nil)

	got := s.Discover(context.Background(), Query{Text: "q"})
	if strings.Count(got, "x") != maxContentChars {
		t.Errorf("content should be truncated to %d chars, found %d", maxContentChars, strings.Count(got, "x"))
	}
}

func TestDiscoverNoHits(t *testing.T) {
	s := NewService(&fakeEmbedder{vector: []float32{1}}, &fakeVectors{}, nil)
	if got := s.Discover(context.Background(), Query{Text: "q"}); got != "No relevant context found." {
		t.Errorf("zero hits should produce the literal sentinel, got %q", got)
	}
}

func TestDiscoverEmbeddingFailure(t *testing.T) {
	s := NewService(&fakeEmbedder{err: errors.New("boom")}, &fakeVectors{}, nil)
	if got := s.Discover(context.Background(), Query{Text: "q"}); got != "" {
		t.Errorf("embedding failure should yield empty context, got %q", got)
	}
}

func TestDiscoverSearchFailure(t *testing.T) {
	s := NewService(&fakeEmbedder{vector: []float32{1}}, &fakeVectors{err: errors.New("down")}, nil)
	if got := s.Discover(context.Background(), Query{Text: "q"}); got != "" {
		t.Errorf("search failure should yield empty context, got %q", got)
	}
}
