package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedDefaultsPresent(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, name := range []string{TypeQualifier, TypeGoalCreation, TypePlanCreation, TypeResolutionCheck, TypeFinalAnswer} {
		tmpl, err := store.Get(name)
		if err != nil {
			t.Errorf("missing embedded template %q: %v", name, err)
			continue
		}
		if tmpl.ModelParams.ModelType == "" {
			t.Errorf("template %q has no model type", name)
		}
	}
}

func TestGetUnknownType(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("no_such_prompt"); err == nil {
		t.Fatal("expected error for unknown prompt type")
	}
}

func TestLoadDirOverridesDefaults(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	custom := `
system_prompt: custom system
user_prompt: custom user {planEnglishQuestion}
model_params:
  model_type: simple
`
	if err := os.WriteFile(filepath.Join(dir, TypeGoalCreation+".yaml"), []byte(custom), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	tmpl, err := store.Get(TypeGoalCreation)
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.SystemPrompt != "custom system\n" && !strings.HasPrefix(tmpl.SystemPrompt, "custom system") {
		t.Errorf("override not applied: %q", tmpl.SystemPrompt)
	}
}

func TestLoadDirMissingIsNotAnError(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.LoadDir(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Fatalf("missing dir should be ignored: %v", err)
	}
}

func TestInterpolate(t *testing.T) {
	cases := []struct {
		text string
		vars map[string]string
		want string
	}{
		{"hello {name}", map[string]string{"name": "world"}, "hello world"},
		{"{a}{b}", map[string]string{"a": "1", "b": "2"}, "12"},
		{"keep {unknown}", map[string]string{}, "keep {unknown}"},
		{"json {\"k\": 1} stays", map[string]string{}, "json {\"k\": 1} stays"},
		{"{name} and {name}", map[string]string{"name": "x"}, "x and x"},
	}
	for _, tc := range cases {
		if got := Interpolate(tc.text, tc.vars); got != tc.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
