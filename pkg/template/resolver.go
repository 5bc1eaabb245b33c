// Package template resolves {{path.to.value}} placeholders in prompt
// templates against a run's accumulated step outputs, falling back to the
// tenant's static business context. Stringification is deterministic and
// size-aware: large collections are truncated with explicit markers so
// rendered prompts stay within budget without silently dropping data.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

const (
	// MaxArrayItems caps how many collection elements are rendered inline.
	MaxArrayItems = 20
	// MaxObjectChars caps the pretty-printed JSON form of a single object.
	MaxObjectChars = 8000
)

// importantKeys is the projection applied to array elements so long
// collections render compactly while keeping the fields downstream steps
// reference most.
var importantKeys = []string{
	"id", "name", "title", "type", "status", "stage",
	"amount", "value", "count", "owner", "email", "date",
	"summary", "score",
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// Render substitutes every {{path}} placeholder in the template. Paths
// resolve against step outputs first, then static business context. A path
// found in neither scope is left as literal placeholder text so
// misconfigured templates are visible in output instead of silently blank.
func Render(tmpl string, ec *skilltypes.ExecutionContext) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := resolvePath(ec.StepResults(), path); ok {
			return Stringify(value)
		}
		if value, ok := resolvePath(ec.Static(), path); ok {
			return Stringify(value)
		}
		return match
	})
}

// resolvePath traverses a dotted path through nested maps. Non-map
// intermediate values are normalized through JSON so struct-valued step
// outputs remain addressable.
func resolvePath(scope map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = scope
	for _, segment := range segments {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case nil:
		return nil, false
	}
	// Round-trip structs and typed maps through JSON.
	raw, err := json.Marshal(v)
	if err != nil || len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, false
	}
	raw, err := json.Marshal(v)
	if err != nil || len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var s []any
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return s, true
}

// Stringify converts a resolved value to its deterministic prompt form:
// nil renders empty, scalars in natural form, arrays as JSON capped at
// MaxArrayItems with a trailing count note, objects as pretty-printed JSON
// capped at MaxObjectChars.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	}

	if items, ok := asSlice(value); ok {
		return stringifyArray(items)
	}
	if m, ok := asMap(value); ok {
		return stringifyObject(m)
	}
	return fmt.Sprintf("%v", value)
}

func stringifyArray(items []any) string {
	total := len(items)
	shown := items
	if total > MaxArrayItems {
		shown = items[:MaxArrayItems]
	}

	projected := make([]any, len(shown))
	for i, item := range shown {
		projected[i] = projectItem(item)
	}

	raw, err := json.Marshal(projected)
	if err != nil {
		raw = []byte("[]")
	}
	if total > MaxArrayItems {
		return fmt.Sprintf("%s\n... and %d more items (%d total)", raw, total-MaxArrayItems, total)
	}
	return string(raw)
}

// projectItem reduces an object element to the important-key allow-list.
// Elements carrying none of the important keys pass through unchanged.
func projectItem(item any) any {
	m, ok := asMap(item)
	if !ok {
		return item
	}
	reduced := make(map[string]any)
	for _, key := range importantKeys {
		if v, exists := m[key]; exists {
			reduced[key] = v
		}
	}
	if len(reduced) == 0 {
		return m
	}
	return reduced
}

func stringifyObject(m map[string]any) string {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	s := string(raw)
	// The cap counts characters, not bytes, so truncation never splits a
	// multi-byte rune into invalid UTF-8.
	if utf8.RuneCountInString(s) > MaxObjectChars {
		return string([]rune(s)[:MaxObjectChars]) + "\n... [truncated]"
	}
	return s
}
