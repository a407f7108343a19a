package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject_StripsCodeFence(t *testing.T) {
	in := "```json\n{\"brief_summary\": \"hi\", \"keywords\": [\"a\"], \"detailed_summary_markdown\": \"# hi\"}\n```"
	out := extractJSONObject(in)
	require.Equal(t, `{"brief_summary": "hi", "keywords": ["a"], "detailed_summary_markdown": "# hi"}`, out)
}

func TestExtractJSONObject_PlainJSON(t *testing.T) {
	in := `{"content_type": "tutorial"}`
	require.Equal(t, in, extractJSONObject(in))
}

func TestExtractJSONObject_NoBraces(t *testing.T) {
	in := "not json at all"
	require.Equal(t, in, extractJSONObject(in))
}
