package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

// NewBuiltinRegistry returns a registry pre-loaded with the deterministic
// compute functions every deployment gets: collection shaping and aggregation
// helpers that let workflow authors shrink payloads before AI steps.
func NewBuiltinRegistry() *Registry {
	registry := NewRegistry()
	registry.MustRegister(&CollectionStatsTool{})
	registry.MustRegister(&FilterItemsTool{})
	registry.MustRegister(&SortItemsTool{})
	registry.MustRegister(&ProjectItemsTool{})
	registry.MustRegister(&ReadContextTool{})
	return registry
}

// resolveSource walks a dotted path through step outputs first, then the
// static business context. Structs are normalized through JSON so any shape
// traverses uniformly.
func resolveSource(ec *skilltypes.ExecutionContext, path string) (any, error) {
	segments := strings.Split(path, ".")
	if value, ok := ec.Result(segments[0]); ok {
		return walkPath(value, segments[1:], path)
	}
	if value, ok := ec.Static()[segments[0]]; ok {
		return walkPath(value, segments[1:], path)
	}
	return nil, errors.Errorf("source %q matches no step output or context key", path)
}

func walkPath(value any, segments []string, full string) (any, error) {
	for _, segment := range segments {
		m, ok := asObject(value)
		if !ok {
			return nil, errors.Errorf("source %q: cannot descend into non-object", full)
		}
		value, ok = m[segment]
		if !ok {
			return nil, errors.Errorf("source %q: field %q not found", full, segment)
		}
	}
	return value, nil
}

func asObject(value any) (map[string]any, bool) {
	if m, ok := value.(map[string]any); ok {
		return m, true
	}
	raw, err := json.Marshal(value)
	if err != nil || len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

func asArray(value any) ([]any, bool) {
	if s, ok := value.([]any); ok {
		return s, true
	}
	raw, err := json.Marshal(value)
	if err != nil || len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var s []any
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return s, true
}

func resolveSourceArray(ec *skilltypes.ExecutionContext, path string) ([]any, error) {
	value, err := resolveSource(ec, path)
	if err != nil {
		return nil, err
	}
	items, ok := asArray(value)
	if !ok {
		return nil, errors.Errorf("source %q is not an array", path)
	}
	return items, nil
}

func toolResultJSON(value any) ToolResult {
	raw, err := json.Marshal(value)
	if err != nil {
		return ToolResult{Error: errors.Wrap(err, "failed to encode result").Error()}
	}
	return ToolResult{Result: string(raw)}
}

// CollectionStatsInput defines the input for collection_stats.
type CollectionStatsInput struct {
	Source string `json:"source" jsonschema:"description=Dotted path to an array in step outputs or context"`
	Field  string `json:"field,omitempty" jsonschema:"description=Optional numeric field to sum and average"`
}

// CollectionStatsTool computes count and optional numeric aggregates over a
// collection, the cheapest way to shrink a large array before an AI step.
type CollectionStatsTool struct{}

func (t *CollectionStatsTool) Name() string {
	return "collection_stats"
}

func (t *CollectionStatsTool) Description() string {
	return "Compute count, sum, average, min and max over an array of items, optionally on one numeric field."
}

func (t *CollectionStatsTool) GenerateSchema() *jsonschema.Schema {
	return GenerateSchema[CollectionStatsInput]()
}

func (t *CollectionStatsTool) ValidateInput(parameters string) error {
	var input CollectionStatsInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return errors.Wrap(err, "invalid input")
	}
	if input.Source == "" {
		return errors.New("source is required")
	}
	return nil
}

func (t *CollectionStatsTool) Execute(_ context.Context, ec *skilltypes.ExecutionContext, parameters string) ToolResult {
	var input CollectionStatsInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return ToolResult{Error: errors.Wrap(err, "invalid input").Error()}
	}
	items, err := resolveSourceArray(ec, input.Source)
	if err != nil {
		return ToolResult{Error: err.Error()}
	}

	stats := map[string]any{"count": len(items)}
	if input.Field != "" {
		var sum, minVal, maxVal float64
		matched := 0
		for _, item := range items {
			obj, ok := asObject(item)
			if !ok {
				continue
			}
			number, ok := obj[input.Field].(float64)
			if !ok {
				continue
			}
			if matched == 0 || number < minVal {
				minVal = number
			}
			if matched == 0 || number > maxVal {
				maxVal = number
			}
			sum += number
			matched++
		}
		stats["matched"] = matched
		stats["sum"] = sum
		if matched > 0 {
			stats["avg"] = sum / float64(matched)
			stats["min"] = minVal
			stats["max"] = maxVal
		}
	}
	return toolResultJSON(stats)
}

// FilterItemsInput defines the input for filter_items.
type FilterItemsInput struct {
	Source string `json:"source" jsonschema:"description=Dotted path to an array in step outputs or context"`
	Field  string `json:"field" jsonschema:"description=Item field to compare"`
	Equals any    `json:"equals" jsonschema:"description=Value the field must equal"`
}

// FilterItemsTool keeps only items whose field equals a value.
type FilterItemsTool struct{}

func (t *FilterItemsTool) Name() string {
	return "filter_items"
}

func (t *FilterItemsTool) Description() string {
	return "Filter an array of items, keeping those whose field equals the given value."
}

func (t *FilterItemsTool) GenerateSchema() *jsonschema.Schema {
	return GenerateSchema[FilterItemsInput]()
}

func (t *FilterItemsTool) ValidateInput(parameters string) error {
	var input FilterItemsInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return errors.Wrap(err, "invalid input")
	}
	if input.Source == "" {
		return errors.New("source is required")
	}
	if input.Field == "" {
		return errors.New("field is required")
	}
	return nil
}

func (t *FilterItemsTool) Execute(_ context.Context, ec *skilltypes.ExecutionContext, parameters string) ToolResult {
	var input FilterItemsInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return ToolResult{Error: errors.Wrap(err, "invalid input").Error()}
	}
	items, err := resolveSourceArray(ec, input.Source)
	if err != nil {
		return ToolResult{Error: err.Error()}
	}

	want := fmt.Sprintf("%v", input.Equals)
	filtered := make([]any, 0, len(items))
	for _, item := range items {
		obj, ok := asObject(item)
		if !ok {
			continue
		}
		if fmt.Sprintf("%v", obj[input.Field]) == want {
			filtered = append(filtered, item)
		}
	}
	return toolResultJSON(filtered)
}

// SortItemsInput defines the input for sort_items.
type SortItemsInput struct {
	Source     string `json:"source" jsonschema:"description=Dotted path to an array in step outputs or context"`
	Field      string `json:"field" jsonschema:"description=Item field to sort by"`
	Descending bool   `json:"descending,omitempty" jsonschema:"description=Sort highest first"`
	Limit      int    `json:"limit,omitempty" jsonschema:"description=Keep only the first N items after sorting"`
}

// SortItemsTool sorts an array by one field with an optional top-N cut.
type SortItemsTool struct{}

func (t *SortItemsTool) Name() string {
	return "sort_items"
}

func (t *SortItemsTool) Description() string {
	return "Sort an array of items by a field, optionally keeping only the top N."
}

func (t *SortItemsTool) GenerateSchema() *jsonschema.Schema {
	return GenerateSchema[SortItemsInput]()
}

func (t *SortItemsTool) ValidateInput(parameters string) error {
	var input SortItemsInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return errors.Wrap(err, "invalid input")
	}
	if input.Source == "" {
		return errors.New("source is required")
	}
	if input.Field == "" {
		return errors.New("field is required")
	}
	if input.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

func (t *SortItemsTool) Execute(_ context.Context, ec *skilltypes.ExecutionContext, parameters string) ToolResult {
	var input SortItemsInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return ToolResult{Error: errors.Wrap(err, "invalid input").Error()}
	}
	items, err := resolveSourceArray(ec, input.Source)
	if err != nil {
		return ToolResult{Error: err.Error()}
	}

	sorted := make([]any, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		less := compareValues(fieldOf(sorted[i], input.Field), fieldOf(sorted[j], input.Field))
		if input.Descending {
			return !less
		}
		return less
	})

	if input.Limit > 0 && input.Limit < len(sorted) {
		sorted = sorted[:input.Limit]
	}
	return toolResultJSON(sorted)
}

func fieldOf(item any, field string) any {
	obj, ok := asObject(item)
	if !ok {
		return nil
	}
	return obj[field]
}

// compareValues orders numbers numerically and everything else by its string
// form. Missing fields sort first.
func compareValues(a, b any) bool {
	numA, okA := a.(float64)
	numB, okB := b.(float64)
	if okA && okB {
		return numA < numB
	}
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

// ProjectItemsInput defines the input for project_items.
type ProjectItemsInput struct {
	Source string   `json:"source" jsonschema:"description=Dotted path to an array in step outputs or context"`
	Fields []string `json:"fields" jsonschema:"description=Fields to keep on each item"`
}

// ProjectItemsTool strips items down to the named fields.
type ProjectItemsTool struct{}

func (t *ProjectItemsTool) Name() string {
	return "project_items"
}

func (t *ProjectItemsTool) Description() string {
	return "Reduce each item in an array to the named fields, dropping everything else."
}

func (t *ProjectItemsTool) GenerateSchema() *jsonschema.Schema {
	return GenerateSchema[ProjectItemsInput]()
}

func (t *ProjectItemsTool) ValidateInput(parameters string) error {
	var input ProjectItemsInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return errors.Wrap(err, "invalid input")
	}
	if input.Source == "" {
		return errors.New("source is required")
	}
	if len(input.Fields) == 0 {
		return errors.New("fields is required")
	}
	return nil
}

func (t *ProjectItemsTool) Execute(_ context.Context, ec *skilltypes.ExecutionContext, parameters string) ToolResult {
	var input ProjectItemsInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return ToolResult{Error: errors.Wrap(err, "invalid input").Error()}
	}
	items, err := resolveSourceArray(ec, input.Source)
	if err != nil {
		return ToolResult{Error: err.Error()}
	}

	projected := make([]any, 0, len(items))
	for _, item := range items {
		obj, ok := asObject(item)
		if !ok {
			projected = append(projected, item)
			continue
		}
		slim := make(map[string]any, len(input.Fields))
		for _, field := range input.Fields {
			if value, ok := obj[field]; ok {
				slim[field] = value
			}
		}
		projected = append(projected, slim)
	}
	return toolResultJSON(projected)
}

// ReadContextInput defines the input for read_context.
type ReadContextInput struct {
	Path string `json:"path" jsonschema:"description=Dotted path into step outputs or business context"`
}

// ReadContextTool lets the model pull a value out of accumulated state during
// a tool-use loop instead of having everything inlined into the prompt.
type ReadContextTool struct{}

func (t *ReadContextTool) Name() string {
	return "read_context"
}

func (t *ReadContextTool) Description() string {
	return "Read a value from earlier step outputs or the business context by dotted path."
}

func (t *ReadContextTool) GenerateSchema() *jsonschema.Schema {
	return GenerateSchema[ReadContextInput]()
}

func (t *ReadContextTool) ValidateInput(parameters string) error {
	var input ReadContextInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return errors.Wrap(err, "invalid input")
	}
	if input.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

func (t *ReadContextTool) Execute(_ context.Context, ec *skilltypes.ExecutionContext, parameters string) ToolResult {
	var input ReadContextInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return ToolResult{Error: errors.Wrap(err, "invalid input").Error()}
	}
	value, err := resolveSource(ec, input.Path)
	if err != nil {
		return ToolResult{Error: err.Error()}
	}
	return toolResultJSON(value)
}
