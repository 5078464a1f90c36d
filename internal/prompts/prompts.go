// Package prompts stores prompt templates keyed by prompt type. Templates
// ship as embedded defaults and may be overridden by YAML files on disk,
// optionally reloaded on change.
package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Prompt types known to the core. Prompt type names double as template
// file basenames.
const (
	TypeQualifier       = "qualifier"
	TypeGoalCreation    = "goal_creation"
	TypePlanCreation    = "plan_creation"
	TypeResolutionCheck = "resolution_check"
	TypeFinalAnswer     = "final_answer"
	TypeLLMAnswer       = "llm_answer"
)

//go:embed defaults/*.yaml
var defaultTemplates embed.FS

// ModelParams selects candidate pool and generation parameters for a
// prompt type.
type ModelParams struct {
	// ModelType is the usage tag resolved against the candidate config.
	ModelType string `yaml:"model_type"`

	// CreativityLevel maps to sampling temperature (0.0 to 1.0).
	CreativityLevel float64 `yaml:"creativity_level"`

	// JSONMode requests structured output from providers that support it.
	JSONMode bool `yaml:"json_mode"`
}

// Template is one prompt template. SystemPrompt and UserPrompt contain
// {placeholder} tokens substituted at call time.
type Template struct {
	SystemPrompt string      `yaml:"system_prompt"`
	UserPrompt   string      `yaml:"user_prompt"`
	ModelParams  ModelParams `yaml:"model_params"`
}

// Store holds templates and serves lookups. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewStore creates a store seeded with the embedded defaults.
func NewStore() (*Store, error) {
	s := &Store{templates: make(map[string]Template)}
	entries, err := fs.ReadDir(defaultTemplates, "defaults")
	if err != nil {
		return nil, fmt.Errorf("read embedded templates: %w", err)
	}
	for _, entry := range entries {
		data, err := defaultTemplates.ReadFile("defaults/" + entry.Name())
		if err != nil {
			return nil, err
		}
		if err := s.addTemplate(entry.Name(), data); err != nil {
			return nil, fmt.Errorf("embedded template %s: %w", entry.Name(), err)
		}
	}
	return s, nil
}

// LoadDir overlays templates from *.yaml files in dir on top of whatever
// the store already holds. Missing dir is not an error.
func (s *Store) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if err := s.addTemplate(entry.Name(), data); err != nil {
			return fmt.Errorf("template %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *Store) addTemplate(filename string, data []byte) error {
	name := strings.TrimSuffix(filename, ".yaml")
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return err
	}
	if strings.TrimSpace(tmpl.SystemPrompt) == "" && strings.TrimSpace(tmpl.UserPrompt) == "" {
		return fmt.Errorf("template has neither system nor user prompt")
	}
	if tmpl.ModelParams.ModelType == "" {
		tmpl.ModelParams.ModelType = "simple"
	}
	s.mu.Lock()
	s.templates[name] = tmpl
	s.mu.Unlock()
	return nil
}

// Get returns the template for promptType. A missing template is a
// configuration error.
func (s *Store) Get(promptType string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[promptType]
	if !ok {
		return Template{}, fmt.Errorf("no template configured for prompt type %q", promptType)
	}
	return tmpl, nil
}

// Types returns the known prompt type names, for diagnostics.
func (s *Store) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	return names
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z][a-zA-Z0-9_]*)\}`)

// Interpolate substitutes {key} tokens from vars. Unknown placeholders are
// left intact so malformed templates surface visibly in model output.
func Interpolate(text string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		key := match[1 : len(match)-1]
		if value, ok := vars[key]; ok {
			return value
		}
		return match
	})
}
