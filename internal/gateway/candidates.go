package gateway

import (
	"sort"

	"github.com/JanDamek/jervis-sub011/internal/config"
)

// candidatePool indexes configured candidates by usage tag and serves
// ordered selections. Immutable after construction.
type candidatePool struct {
	byUsage map[string][]config.ModelCandidate
}

func newCandidatePool(candidates []config.ModelCandidate) *candidatePool {
	pool := &candidatePool{byUsage: make(map[string][]config.ModelCandidate)}
	for _, c := range candidates {
		pool.byUsage[c.Usage] = append(pool.byUsage[c.Usage], c)
	}
	// Primary before fallback; insertion order within a role.
	for usage, list := range pool.byUsage {
		sort.SliceStable(list, func(i, j int) bool {
			return roleRank(list[i].Role) < roleRank(list[j].Role)
		})
		pool.byUsage[usage] = list
	}
	return pool
}

func roleRank(role config.CandidateRole) int {
	switch role {
	case config.RolePrimary:
		return 0
	case config.RoleFallback:
		return 1
	default:
		return 2
	}
}

// select returns the candidates for usage in try order. Candidates whose
// input cap is below estimatedTokens are dropped. With quick set, the list
// is restricted to quick-marked candidates unless that leaves none.
func (p *candidatePool) selectCandidates(usage string, quick bool, estimatedTokens int) []config.ModelCandidate {
	configured := p.byUsage[usage]
	fitting := make([]config.ModelCandidate, 0, len(configured))
	for _, c := range configured {
		if c.MaxInputTokens > 0 && estimatedTokens > c.MaxInputTokens {
			continue
		}
		fitting = append(fitting, c)
	}
	if !quick {
		return fitting
	}
	quickOnly := make([]config.ModelCandidate, 0, len(fitting))
	for _, c := range fitting {
		if c.Quick {
			quickOnly = append(quickOnly, c)
		}
	}
	if len(quickOnly) == 0 {
		return fitting
	}
	return quickOnly
}

// usages returns every configured usage tag.
func (p *candidatePool) usages() []string {
	tags := make([]string, 0, len(p.byUsage))
	for tag := range p.byUsage {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
