package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when model output is not the JSON object
// the prompt asked for.
var ErrMalformedResponse = errors.New("malformed model response")

// DecodeJSON decodes the first JSON object in raw into dst. Markdown code
// fences and prose around the object are ignored; anything else that fails
// to decode is ErrMalformedResponse, with no partial recovery.
func DecodeJSON(raw string, dst any) error {
	clean := extractJSON(raw)
	if !strings.HasPrefix(clean, "{") {
		return fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(clean), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// extractJSON extracts the first complete JSON object from text that may
// contain extra prose. LLMs add explanations around the JSON despite
// instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings.
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	// Unterminated object: return from the first brace and let the decoder fail.
	return text[start:]
}
