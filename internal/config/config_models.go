package config

import (
	"fmt"
	"strings"
	"time"
)

// CandidateRole orders candidates within one usage tag.
type CandidateRole string

const (
	RolePrimary     CandidateRole = "primary"
	RoleFallback    CandidateRole = "fallback"
	RoleUnspecified CandidateRole = ""
)

// Usage tags map prompt types to candidate pools. Additional tags may be
// referenced by prompt types; these are the recognized core set.
const (
	UsageEmbedding  = "embedding"
	UsageQualifier  = "qualifier"
	UsageSimple     = "simple"
	UsageComplex    = "complex"
	UsageFinalizing = "finalizing"
)

// ModelCandidate is one configured (provider, model) entry. Candidates are
// read-only process configuration after startup.
type ModelCandidate struct {
	// Provider tags the backend family: "openai", "google", "anthropic",
	// "ollama". The tag also keys the concurrency semaphore.
	Provider string `yaml:"provider"`

	// Model is the provider-side model name.
	Model string `yaml:"model"`

	// Usage selects which prompt types this candidate serves.
	Usage string `yaml:"usage"`

	// Role orders candidates within a usage tag: primary before fallback,
	// insertion order within a role.
	Role CandidateRole `yaml:"role"`

	// Quick marks low-latency candidates preferred for quick contexts.
	Quick bool `yaml:"quick"`

	// MaxInputTokens drops the candidate when the estimated prompt
	// exceeds it. Zero means unlimited.
	MaxInputTokens int `yaml:"max_input_tokens"`

	// MaxOutputTokens caps generation (num_predict for local models).
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// ContextLength is the advertised context window.
	ContextLength int `yaml:"context_length"`

	// MaxConcurrentRequests sizes the provider semaphore. The largest
	// value across candidates of one provider wins; zero defaults to 2.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`

	// TimeoutMs bounds a single call; zero uses the provider default.
	TimeoutMs int `yaml:"timeout_ms"`

	// BaseURL overrides the provider endpoint (openai-compatible servers,
	// local ollama hosts).
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the credential.
	APIKeyEnv string `yaml:"api_key_env"`

	// KeepAlive marks ollama models the warmer keeps loaded, with the
	// model's advertised keep-alive duration.
	KeepAlive time.Duration `yaml:"keep_alive"`

	// Pool tags candidates the startup preloader pulls onto a specific
	// compute pool.
	Pool string `yaml:"pool"`
}

// Timeout returns the configured call timeout or zero.
func (m ModelCandidate) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

func validateModels(models []ModelCandidate) error {
	if len(models) == 0 {
		return fmt.Errorf("at least one model candidate is required")
	}
	usages := map[string]bool{}
	for i, m := range models {
		if strings.TrimSpace(m.Provider) == "" {
			return fmt.Errorf("entry %d: provider is required", i)
		}
		if strings.TrimSpace(m.Model) == "" {
			return fmt.Errorf("entry %d: model is required", i)
		}
		if strings.TrimSpace(m.Usage) == "" {
			return fmt.Errorf("entry %d: usage is required", i)
		}
		switch m.Role {
		case RolePrimary, RoleFallback, RoleUnspecified:
		default:
			return fmt.Errorf("entry %d: unknown role %q", i, m.Role)
		}
		if m.MaxConcurrentRequests < 0 {
			return fmt.Errorf("entry %d: max_concurrent_requests must not be negative", i)
		}
		usages[m.Usage] = true
	}
	if !usages[UsageEmbedding] {
		return fmt.Errorf("no candidate configured for usage %q", UsageEmbedding)
	}
	return nil
}
