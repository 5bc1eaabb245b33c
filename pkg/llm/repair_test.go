package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

func TestParseStructuredNilSchemaPassesThrough(t *testing.T) {
	out, err := ParseStructured(context.Background(), "plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestParseStructuredStrictArray(t *testing.T) {
	schema := &llmtypes.OutputSchema{Type: "array", ItemKeys: []string{"id"}}

	out, err := ParseStructured(context.Background(), `[{"id":"a"},{"id":"b"}]`, schema)
	require.NoError(t, err)
	arr, ok := out.([]any)
	require.True(t, ok)
	assert.Len(t, arr, 2)
}

func TestParseStructuredStripsCodeFence(t *testing.T) {
	schema := &llmtypes.OutputSchema{Type: "object"}

	tests := []struct {
		name    string
		content string
	}{
		{name: "json fence", content: "```json\n{\"ok\":true}\n```"},
		{name: "bare fence", content: "```\n{\"ok\":true}\n```"},
		{name: "no fence", content: `{"ok":true}`},
		{name: "surrounding whitespace", content: "\n  {\"ok\":true}  \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ParseStructured(context.Background(), tt.content, schema)
			require.NoError(t, err)
			obj, ok := out.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, true, obj["ok"])
		})
	}
}

func TestParseStructuredRepairsWrappedArray(t *testing.T) {
	schema := &llmtypes.OutputSchema{Type: "array", ItemKeys: []string{"id", "label"}}

	content := `{"results": [{"id":"a","label":"hot"}], "note": "done"}`
	out, err := ParseStructured(context.Background(), content, schema)
	require.NoError(t, err)

	arr, ok := out.([]any)
	require.True(t, ok)
	require.Len(t, arr, 1)
	first := arr[0].(map[string]any)
	assert.Equal(t, "a", first["id"])
}

func TestParseStructuredRepairPicksBestScoringArray(t *testing.T) {
	schema := &llmtypes.OutputSchema{Type: "array", ItemKeys: []string{"id", "label"}}

	// Two candidate arrays; only one carries the expected item keys.
	content := `{
		"warnings": [{"code": 1}],
		"data": {"classified": [{"id":"a","label":"hot"},{"id":"b","label":"cold"}]}
	}`
	out, err := ParseStructured(context.Background(), content, schema)
	require.NoError(t, err)

	arr := out.([]any)
	require.Len(t, arr, 2)
	assert.Equal(t, "hot", arr[0].(map[string]any)["label"])
}

func TestParseStructuredRepairTieBreakIsDeterministic(t *testing.T) {
	schema := &llmtypes.OutputSchema{Type: "array", ItemKeys: []string{"id"}}

	// Both arrays score identically on key overlap; the longer one must win
	// on every invocation regardless of map iteration order.
	content := `{"first": [{"id":1}], "second": [{"id":2},{"id":3}]}`
	for i := 0; i < 50; i++ {
		out, err := ParseStructured(context.Background(), content, schema)
		require.NoError(t, err)
		arr := out.([]any)
		require.Len(t, arr, 2)
		assert.Equal(t, float64(2), arr[0].(map[string]any)["id"])
	}
}

func TestParseStructuredRepairTieBreakOnEqualLengthPrefersSmallerPath(t *testing.T) {
	schema := &llmtypes.OutputSchema{Type: "array", ItemKeys: []string{"id"}}

	content := `{"zebra": [{"id":"z"}], "alpha": [{"id":"a"}]}`
	for i := 0; i < 50; i++ {
		out, err := ParseStructured(context.Background(), content, schema)
		require.NoError(t, err)
		arr := out.([]any)
		require.Len(t, arr, 1)
		assert.Equal(t, "a", arr[0].(map[string]any)["id"])
	}
}

func TestParseStructuredInvalidJSON(t *testing.T) {
	schema := &llmtypes.OutputSchema{Type: "array"}

	_, err := ParseStructured(context.Background(), "I could not produce JSON, sorry", schema)
	require.Error(t, err)
	var parseErr *llmtypes.SchemaParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestParseStructuredObjectExpectedButArrayGot(t *testing.T) {
	schema := &llmtypes.OutputSchema{Type: "object"}

	_, err := ParseStructured(context.Background(), `[1,2,3]`, schema)
	require.Error(t, err)
	var parseErr *llmtypes.SchemaParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "object", parseErr.Expected)
}

func TestParseStructuredArrayExpectedNoCandidate(t *testing.T) {
	schema := &llmtypes.OutputSchema{Type: "array", ItemKeys: []string{"id"}}

	_, err := ParseStructured(context.Background(), `{"message": "no list here"}`, schema)
	require.Error(t, err)
	var parseErr *llmtypes.SchemaParseError
	assert.ErrorAs(t, err, &parseErr)
}
