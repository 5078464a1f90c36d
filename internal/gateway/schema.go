package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// ErrSchemaViolation marks model output that could not be parsed into the
// requested shape. The planner retries within its budget before failing.
var ErrSchemaViolation = errors.New("response violates the requested schema")

// StripFences removes a markdown code-fence wrapper from model output.
// Idempotent: applying it to already-stripped text returns the text
// unchanged.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		// A language tag such as "json" occupies the rest of the fence line.
		head := strings.TrimSpace(body[:newline])
		if head == "" || isFenceLanguage(head) {
			body = body[newline+1:]
		}
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func isFenceLanguage(tag string) bool {
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// SanitizeControlChars escapes raw control characters that appear inside
// JSON string literals. Models occasionally emit literal newlines or tabs
// inside strings; standard decoders reject those. Characters outside
// string literals are left untouched, so decoding the sanitized text
// yields the original string values.
func SanitizeControlChars(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for _, r := range text {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case inString && r == '\\':
			b.WriteRune(r)
			escaped = true
		case r == '"':
			inString = !inString
			b.WriteRune(r)
		case inString && r < 0x20:
			switch r {
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				fmt.Fprintf(&b, `\u%04x`, r)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseInto decodes model output into out, which must be a non-nil pointer.
// The text is fence-stripped and sanitized first; when strict decoding
// fails, a JSON repair pass is attempted before giving up. Unknown fields
// are ignored; missing fields keep out's zero values.
func ParseInto(text string, out any) error {
	cleaned := SanitizeControlChars(StripFences(text))
	if cleaned == "" {
		return fmt.Errorf("%w: empty response", ErrSchemaViolation)
	}
	first, _ := utf8.DecodeRuneInString(strings.TrimSpace(cleaned))
	if first != '{' && first != '[' {
		return fmt.Errorf("%w: response does not start with an object or array", ErrSchemaViolation)
	}
	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

// SchemaDirective renders the instruction appended to system prompts when
// the caller declares a response shape. The schema is reflected from the
// destination value's type.
func SchemaDirective(out any) (string, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := reflector.Reflect(out)
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("reflect response schema: %w", err)
	}
	return fmt.Sprintf(
		"\n\nRespond with JSON only, matching this schema exactly. No markdown fencing, no prose outside the JSON.\nSchema: %s",
		schemaJSON,
	), nil
}
