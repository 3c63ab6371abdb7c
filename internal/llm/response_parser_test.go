package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! Here it is: {"a":{"b":2}} Hope that helps.`, `{"a":{"b":2}}`},
		{"braces in strings", `{"text":"use { and } freely"} trailing`, `{"text":"use { and } freely"}`},
		{"escaped quote", `{"text":"say \"hi\" {"} x`, `{"text":"say \"hi\" {"}`},
		{"no object", `just words`, `just words`},
		{"unterminated", `prefix {"a":1`, `{"a":1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.input))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	}
	require.NoError(t, DecodeJSON("```json\n{\"language\":\"es\",\"confidence\":0.98}\n```", &out))
	assert.Equal(t, "es", out.Language)
	assert.InDelta(t, 0.98, out.Confidence, 1e-9)
}

func TestDecodeJSON_Malformed(t *testing.T) {
	var out map[string]any
	for _, raw := range []string{"", "no json here", `{"a":`, `{"a":1,}`, `[1,2,3]`} {
		err := DecodeJSON(raw, &out)
		assert.ErrorIs(t, err, ErrMalformedResponse, "input %q", raw)
	}
}
