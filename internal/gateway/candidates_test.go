package gateway

import (
	"testing"

	"github.com/JanDamek/jervis-sub011/internal/config"
)

func TestSelectCandidatesOrdering(t *testing.T) {
	pool := newCandidatePool([]config.ModelCandidate{
		{Provider: "ollama", Model: "local-fallback", Usage: "complex", Role: config.RoleFallback},
		{Provider: "openai", Model: "big-primary", Usage: "complex", Role: config.RolePrimary},
		{Provider: "anthropic", Model: "second-primary", Usage: "complex", Role: config.RolePrimary},
		{Provider: "openai", Model: "other-usage", Usage: "simple", Role: config.RolePrimary},
	})

	got := pool.selectCandidates("complex", false, 100)
	want := []string{"big-primary", "second-primary", "local-fallback"}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for i, model := range want {
		if got[i].Model != model {
			t.Errorf("position %d: got %s, want %s", i, got[i].Model, model)
		}
	}
}

func TestSelectCandidatesTokenFilter(t *testing.T) {
	pool := newCandidatePool([]config.ModelCandidate{
		{Provider: "ollama", Model: "small", Usage: "simple", Role: config.RolePrimary, MaxInputTokens: 1000},
		{Provider: "openai", Model: "large", Usage: "simple", Role: config.RoleFallback},
	})

	got := pool.selectCandidates("simple", false, 5000)
	if len(got) != 1 || got[0].Model != "large" {
		t.Fatalf("token filter should leave only the uncapped candidate, got %+v", got)
	}
}

func TestSelectCandidatesQuick(t *testing.T) {
	pool := newCandidatePool([]config.ModelCandidate{
		{Provider: "openai", Model: "slow", Usage: "simple", Role: config.RolePrimary},
		{Provider: "ollama", Model: "fast", Usage: "simple", Role: config.RoleFallback, Quick: true},
	})

	got := pool.selectCandidates("simple", true, 100)
	if len(got) != 1 || got[0].Model != "fast" {
		t.Fatalf("quick should restrict to quick candidates, got %+v", got)
	}

	// No quick candidate for this usage: the full list is reused.
	pool = newCandidatePool([]config.ModelCandidate{
		{Provider: "openai", Model: "only", Usage: "simple", Role: config.RolePrimary},
	})
	got = pool.selectCandidates("simple", true, 100)
	if len(got) != 1 || got[0].Model != "only" {
		t.Fatalf("quick with no quick candidates should fall back to full list, got %+v", got)
	}
}

func TestSelectCandidatesUnknownUsage(t *testing.T) {
	pool := newCandidatePool(nil)
	if got := pool.selectCandidates("nope", false, 10); len(got) != 0 {
		t.Errorf("unknown usage should yield no candidates, got %+v", got)
	}
}
