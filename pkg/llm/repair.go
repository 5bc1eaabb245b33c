package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/relaycrm/skillengine/pkg/logger"
	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// ParseStructured parses model output against a step's declared schema.
// Strict parsing is attempted first; when an array was expected but an
// object came back, the most schema-compatible nested array is unwrapped as
// a best-effort repair. Every repair is logged with its confidence score so
// false-positive unwraps are discoverable. When nothing conforms, a
// SchemaParseError is returned and callers fall back to the raw text.
func ParseStructured(ctx context.Context, content string, schema *llmtypes.OutputSchema) (any, error) {
	if schema == nil {
		return content, nil
	}

	raw := stripCodeFence(content)
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, &llmtypes.SchemaParseError{Expected: schema.Type, Err: errors.Wrap(err, "output is not valid JSON")}
	}

	switch schema.Type {
	case "array":
		if arr, ok := parsed.([]any); ok {
			return arr, nil
		}
		obj, ok := parsed.(map[string]any)
		if !ok {
			return nil, &llmtypes.SchemaParseError{Expected: "array", Err: errors.New("output is neither an array nor an object")}
		}
		if arr, score, path := bestArrayCandidate(obj, schema.ItemKeys); arr != nil {
			logger.G(ctx).
				WithField("path", path).
				WithField("key_overlap_score", score).
				Warn("repaired model output: unwrapped nested array from object response")
			return arr, nil
		}
		return nil, &llmtypes.SchemaParseError{Expected: "array", Err: errors.New("no schema-compatible array found in object response")}
	case "object":
		if obj, ok := parsed.(map[string]any); ok {
			return obj, nil
		}
		return nil, &llmtypes.SchemaParseError{Expected: "object", Err: errors.New("output is not an object")}
	default:
		return parsed, nil
	}
}

// bestArrayCandidate scans the object (two levels deep) for array values,
// scoring each by how many of the expected item keys its elements carry.
// Returns the highest-scoring array, its score and its path. Ties go to the
// longer array, then the lexicographically smaller path, so identical input
// always repairs to the same candidate regardless of map iteration order.
func bestArrayCandidate(obj map[string]any, itemKeys []string) ([]any, int, string) {
	var best []any
	bestScore := -1
	bestPath := ""

	consider := func(path string, arr []any) {
		score := scoreArray(arr, itemKeys)
		switch {
		case score > bestScore:
		case score == bestScore && len(arr) > len(best):
		case score == bestScore && len(arr) == len(best) && path < bestPath:
		default:
			return
		}
		best, bestScore, bestPath = arr, score, path
	}

	for key, value := range obj {
		if arr, ok := value.([]any); ok {
			consider(key, arr)
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			for nestedKey, nestedValue := range nested {
				if arr, ok := nestedValue.([]any); ok {
					consider(key+"."+nestedKey, arr)
				}
			}
		}
	}
	return best, bestScore, bestPath
}

// scoreArray counts how many expected item keys appear on the array's first
// element. Arrays of non-objects score zero, which still beats no candidate
// when no keys were declared.
func scoreArray(arr []any, itemKeys []string) int {
	if len(arr) == 0 || len(itemKeys) == 0 {
		return 0
	}
	first, ok := arr[0].(map[string]any)
	if !ok {
		return 0
	}
	score := 0
	for _, key := range itemKeys {
		if _, exists := first[key]; exists {
			score++
		}
	}
	return score
}

// stripCodeFence removes a surrounding markdown code fence, which models
// frequently wrap JSON output in despite instructions.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
