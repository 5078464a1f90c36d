package gateway

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with whitespace", "  ```json\n[1,2]\n```  ", `[1,2]`},
		{"array no fence", `[1, 2, 3]`, `[1, 2, 3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripFences(tt.in)
			if got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
			// Applying the stripper again must not change the result.
			if again := StripFences(got); again != got {
				t.Errorf("StripFences not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestSanitizeControlCharsRoundTrip(t *testing.T) {
	// A raw newline inside a string literal is invalid JSON; after
	// sanitizing, decoding must yield the original string content.
	raw := "{\"text\": \"line one\nline two\ttabbed\"}"
	sanitized := SanitizeControlChars(raw)

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(sanitized), &decoded); err != nil {
		t.Fatalf("sanitized output is not valid JSON: %v", err)
	}
	if decoded.Text != "line one\nline two\ttabbed" {
		t.Errorf("decoded %q, want original content preserved", decoded.Text)
	}
}

func TestSanitizeControlCharsLeavesStructureAlone(t *testing.T) {
	raw := "{\n  \"a\": 1,\n  \"b\": \"x\"\n}"
	if got := SanitizeControlChars(raw); got != raw {
		t.Errorf("structural whitespace was altered:\n%q", got)
	}
}

func TestSanitizeControlCharsRespectsEscapes(t *testing.T) {
	raw := `{"a": "already\nescaped \"quote\""}`
	if got := SanitizeControlChars(raw); got != raw {
		t.Errorf("escaped sequences were altered:\n%q", got)
	}
}

func TestParseInto(t *testing.T) {
	type goal struct {
		GoalID     int    `json:"goalId"`
		GoalIntent string `json:"goalIntent"`
	}
	type response struct {
		Goals []goal `json:"goals"`
	}

	t.Run("fenced object", func(t *testing.T) {
		var out response
		text := "```json\n{\"goals\": [{\"goalId\": 0, \"goalIntent\": \"fetch\"}]}\n```"
		if err := ParseInto(text, &out); err != nil {
			t.Fatalf("ParseInto: %v", err)
		}
		if len(out.Goals) != 1 || out.Goals[0].GoalIntent != "fetch" {
			t.Errorf("unexpected parse result: %+v", out)
		}
	})

	t.Run("repairable json", func(t *testing.T) {
		var out response
		// Trailing comma is rejected by the strict decoder.
		text := `{"goals": [{"goalId": 0, "goalIntent": "fetch"},]}`
		if err := ParseInto(text, &out); err != nil {
			t.Fatalf("ParseInto should repair: %v", err)
		}
		if len(out.Goals) != 1 {
			t.Errorf("unexpected parse result: %+v", out)
		}
	})

	t.Run("prose is rejected", func(t *testing.T) {
		var out response
		err := ParseInto("Sure, here are the goals you asked for.", &out)
		if !errors.Is(err, ErrSchemaViolation) {
			t.Errorf("want ErrSchemaViolation, got %v", err)
		}
	})

	t.Run("empty is rejected", func(t *testing.T) {
		var out response
		if err := ParseInto("   ", &out); !errors.Is(err, ErrSchemaViolation) {
			t.Errorf("want ErrSchemaViolation, got %v", err)
		}
	})
}

func TestSchemaDirective(t *testing.T) {
	type step struct {
		StepToolName    string `json:"stepToolName"`
		StepInstruction string `json:"stepInstruction"`
	}
	var out struct {
		Steps []step `json:"steps"`
	}
	directive, err := SchemaDirective(&out)
	if err != nil {
		t.Fatalf("SchemaDirective: %v", err)
	}
	for _, want := range []string{"stepToolName", "stepInstruction", "JSON only"} {
		if !strings.Contains(directive, want) {
			t.Errorf("directive missing %q:\n%s", want, directive)
		}
	}
}
