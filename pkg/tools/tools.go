// Package tools provides the tool execution framework for the skill engine.
// It defines the Tool interface shared by compute functions and
// model-invocable tools, a registry for looking them up by name, and the
// execution path with validation, tracing and error containment.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaycrm/skillengine/pkg/logger"
	"github.com/relaycrm/skillengine/pkg/telemetry"
	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

// GenerateSchema reflects a JSON schema from a tool's input struct.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T

	return reflector.Reflect(v)
}

// Tool is a named, callable unit: either a deterministic compute function
// invoked directly by the scheduler, or a data-fetching tool the model may
// request during a tool-use loop. Input arrives as a JSON document matching
// the declared schema.
type Tool interface {
	Name() string
	Description() string
	GenerateSchema() *jsonschema.Schema
	ValidateInput(parameters string) error
	Execute(ctx context.Context, ec *skilltypes.ExecutionContext, parameters string) ToolResult
}

// ToolResult is the outcome of one tool execution. A failing tool reports
// its error here rather than raising; the caller decides whether to surface
// it or feed it back to the model as data.
type ToolResult struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// IsError reports whether the execution failed.
func (t *ToolResult) IsError() bool {
	return t.Error != ""
}

func (t *ToolResult) String() string {
	out := ""
	if t.Error != "" {
		out = fmt.Sprintf("<error>\n%s\n</error>\n", t.Error)
	}
	if t.Result != "" {
		out += fmt.Sprintf("<result>\n%s\n</result>\n", t.Result)
	}
	return out
}

// ExecutionError marks a tool invocation failure: unknown tool, rejected
// input, or a panic inside the tool body.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Registry is a lookup of named tools. Registration happens at wiring time;
// lookups are concurrent-safe for the many runs sharing one registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its name. Duplicate names are a wiring error.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return errors.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// MustRegister registers a tool and panics on duplicate names. Intended for
// static wiring at startup.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions resolves declared tool names into provider-facing definitions.
// An unknown name is a configuration error in the workflow.
func (r *Registry) Definitions(names []string) ([]llmtypes.ToolDefinition, error) {
	defs := make([]llmtypes.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool, ok := r.Lookup(name)
		if !ok {
			return nil, skilltypes.NewConfigurationError("tool %q is not registered", name)
		}
		schemaJSON, err := json.Marshal(tool.GenerateSchema())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal schema for tool %q", name)
		}
		defs = append(defs, llmtypes.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      schemaJSON,
		})
	}
	return defs, nil
}

var tracer = telemetry.Tracer("skillengine.tools")

// Run executes one tool end to end: lookup, input validation, execution.
// Failures are contained in the ToolResult, never raised.
func (r *Registry) Run(ctx context.Context, ec *skilltypes.ExecutionContext, toolName string, parameters string) ToolResult {
	tool, ok := r.Lookup(toolName)
	if !ok {
		err := &ExecutionError{Tool: toolName, Err: errors.New("tool not registered")}
		return ToolResult{Error: err.Error()}
	}

	ctx, span := tracer.Start(
		ctx,
		fmt.Sprintf("tools.run.%s", toolName),
		trace.WithAttributes(attribute.String("tool.name", toolName)),
	)
	defer span.End()

	if err := tool.ValidateInput(parameters); err != nil {
		execErr := &ExecutionError{Tool: toolName, Err: err}
		return ToolResult{Error: execErr.Error()}
	}

	result := runContained(ctx, tool, ec, parameters)
	if result.IsError() {
		logger.G(ctx).WithField("tool", toolName).WithField("error", result.Error).Warn("tool execution failed")
	}
	return result
}

// runContained executes the tool and converts a panic into a tool error so a
// misbehaving tool cannot take down the run.
func runContained(ctx context.Context, tool Tool, ec *skilltypes.ExecutionContext, parameters string) (result ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			execErr := &ExecutionError{Tool: tool.Name(), Err: errors.Errorf("panic: %v", r)}
			result = ToolResult{Error: execErr.Error()}
		}
	}()
	return tool.Execute(ctx, ec, parameters)
}
