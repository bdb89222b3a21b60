package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]any
		wantErr bool
	}{
		{
			name:  "plain object",
			input: `{"summary": "ok"}`,
			want:  map[string]any{"summary": "ok"},
		},
		{
			name:  "fenced",
			input: "```json\n{\"eli5\": \"simple\"}\n```",
			want:  map[string]any{"eli5": "simple"},
		},
		{
			name:  "prose around object",
			input: "Here you go: {\"a\": {\"b\": \"}\"}} hope that helps",
			want:  map[string]any{"a": map[string]any{"b": "}"}},
		},
		{
			name:  "escaped quote in string",
			input: `{"q": "say \"hi\" {now}"}`,
			want:  map[string]any{"q": `say "hi" {now}`},
		},
		{name: "no object", input: "no json here", wantErr: true},
		{name: "unbalanced", input: `{"a": "b"`, wantErr: true},
		{name: "invalid inside braces", input: `{a: b}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeObject(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"x":1}`, StripCodeFences("  ```json{\"x\":1}```  "))
	assert.Equal(t, "plain", StripCodeFences("plain"))
}
