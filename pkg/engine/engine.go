// Package engine implements the skill runtime: it orders a workflow's steps
// by their declared dependencies, executes them strictly sequentially
// (compute steps through the tool registry, AI steps through the capability
// router with an optional bounded tool-use loop), and persists the run
// record. Step failures are recorded and execution continues; partial
// results beat an all-or-nothing failure for the operators reading them.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaycrm/skillengine/pkg/guardrail"
	"github.com/relaycrm/skillengine/pkg/logger"
	"github.com/relaycrm/skillengine/pkg/llm"
	"github.com/relaycrm/skillengine/pkg/runstore"
	"github.com/relaycrm/skillengine/pkg/telemetry"
	"github.com/relaycrm/skillengine/pkg/template"
	"github.com/relaycrm/skillengine/pkg/tools"
	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

const defaultMaxToolCalls = 8

var tracer = telemetry.Tracer("skillengine.engine")

// Caller abstracts the capability router so tests can substitute a mock
// provider.
type Caller interface {
	Call(ctx context.Context, tenantID string, capability llmtypes.Capability, req llmtypes.Request) (*llmtypes.Response, error)
}

// BusinessContextSource supplies the tenant's read-only business context,
// the fallback scope for template resolution.
type BusinessContextSource interface {
	GetContext(ctx context.Context, tenantID string) (map[string]any, error)
}

type emptyContextSource struct{}

func (emptyContextSource) GetContext(context.Context, string) (map[string]any, error) {
	return map[string]any{}, nil
}

// Engine executes workflow definitions.
type Engine struct {
	caller        Caller
	registry      *tools.Registry
	contextSource BusinessContextSource
	runStore      runstore.Store
	guard         *guardrail.Guardrail
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBusinessContext sets the static context source.
func WithBusinessContext(source BusinessContextSource) EngineOption {
	return func(e *Engine) { e.contextSource = source }
}

// WithRunStore sets the run persistence sink.
func WithRunStore(store runstore.Store) EngineOption {
	return func(e *Engine) { e.runStore = store }
}

// WithGuardrail overrides the budget guardrail limits.
func WithGuardrail(guard *guardrail.Guardrail) EngineOption {
	return func(e *Engine) { e.guard = guard }
}

// New builds an engine over a capability caller and a tool registry.
func New(caller Caller, registry *tools.Registry, opts ...EngineOption) *Engine {
	engine := &Engine{
		caller:        caller,
		registry:      registry,
		contextSource: emptyContextSource{},
		runStore:      runstore.LogStore{},
		guard:         guardrail.New(guardrail.DefaultLimits()),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Execute runs a workflow for a tenant. The dependency graph is validated
// before any step executes; a cycle returns a ConfigurationError with no
// side effects. After that, step failures never abort the run: they are
// recorded in the error list and execution continues, so the returned
// RunRecord carries partial results. The run's final output is the output
// of the last step in topological order.
func (e *Engine) Execute(ctx context.Context, workflow *skilltypes.Workflow, tenantID string, params map[string]any) (*skilltypes.RunRecord, error) {
	order, err := topoSort(workflow)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "engine.execute", trace.WithAttributes(
		attribute.String("workflow_id", workflow.ID),
		attribute.String("tenant_id", tenantID),
	))
	defer span.End()

	record := &skilltypes.RunRecord{
		ID:         uuid.NewString(),
		WorkflowID: workflow.ID,
		TenantID:   tenantID,
		Status:     skilltypes.RunStatusRunning,
		StartedAt:  time.Now(),
	}
	log := logger.G(ctx).
		WithField("run_id", record.ID).
		WithField("workflow_id", workflow.ID).
		WithField("tenant_id", tenantID)
	ctx = logger.WithLogger(ctx, log)

	if err := e.runStore.CreateRun(ctx, record); err != nil {
		log.WithError(err).Warn("failed to persist run start")
	}

	static, err := e.contextSource.GetContext(ctx, tenantID)
	if err != nil {
		log.WithError(err).Warn("failed to load business context, templates fall back to step outputs only")
		static = map[string]any{}
	}
	ec := skilltypes.NewExecutionContext(tenantID, params, static)

	for _, step := range order {
		if ctx.Err() != nil {
			ec.RecordError(step.ID, errors.Wrap(ctx.Err(), "run cancelled"))
			record.Steps = append(record.Steps, skilltypes.StepOutcome{
				StepID:    step.ID,
				OutputKey: step.OutputKey,
				Status:    skilltypes.StepStatusFailed,
				Error:     ctx.Err().Error(),
			})
			continue
		}
		record.Steps = append(record.Steps, e.executeStep(ctx, step, ec))
	}

	e.finalize(ctx, record, order, ec)
	return record, nil
}

func (e *Engine) executeStep(ctx context.Context, step *skilltypes.Step, ec *skilltypes.ExecutionContext) skilltypes.StepOutcome {
	started := time.Now()
	log := logger.G(ctx).WithField("step", step.ID).WithField("tier", step.Tier)
	log.Debug("executing step")

	value, err := e.runStep(ctx, step, ec)
	outcome := skilltypes.StepOutcome{
		StepID:     step.ID,
		OutputKey:  step.OutputKey,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		log.WithError(err).Warn("step failed, continuing with remaining steps")
		ec.RecordError(step.ID, err)
		outcome.Status = skilltypes.StepStatusFailed
		outcome.Error = err.Error()
		return outcome
	}

	if err := ec.StoreResult(step.OutputKey, value); err != nil {
		log.WithError(err).Warn("step result discarded")
		ec.RecordError(step.ID, err)
		outcome.Status = skilltypes.StepStatusFailed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Status = skilltypes.StepStatusSucceeded
	return outcome
}

func (e *Engine) runStep(ctx context.Context, step *skilltypes.Step, ec *skilltypes.ExecutionContext) (any, error) {
	switch {
	case step.Tier == skilltypes.TierCompute:
		return e.runComputeStep(ctx, step, ec)
	case step.Tier.IsAI():
		return e.runAIStep(ctx, step, ec)
	default:
		return nil, skilltypes.NewConfigurationError("step %s has unknown tier %q", step.ID, step.Tier)
	}
}

func (e *Engine) runComputeStep(ctx context.Context, step *skilltypes.Step, ec *skilltypes.ExecutionContext) (any, error) {
	if step.Compute == nil {
		return nil, skilltypes.NewConfigurationError("compute step %s has no compute spec", step.ID)
	}
	args, err := json.Marshal(step.Compute.Args)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode args for step %s", step.ID)
	}

	result := e.registry.Run(ctx, ec, step.Compute.Function, string(args))
	if result.IsError() {
		return nil, &tools.ExecutionError{Tool: step.Compute.Function, Err: errors.New(result.Error)}
	}
	return decodeResult(result.Result), nil
}

func (e *Engine) runAIStep(ctx context.Context, step *skilltypes.Step, ec *skilltypes.ExecutionContext) (any, error) {
	if step.Prompt == nil {
		return nil, skilltypes.NewConfigurationError("AI step %s has no prompt spec", step.ID)
	}
	spec := step.Prompt

	prompt := template.Render(spec.Template, ec)
	if err := e.guard.Validate(ctx, step, prompt, ec); err != nil {
		return nil, err
	}

	var content string
	var err error
	if len(spec.Tools) > 0 {
		maxToolCalls := spec.MaxToolCalls
		if maxToolCalls <= 0 {
			maxToolCalls = defaultMaxToolCalls
		}
		content, err = e.runWithTools(ctx, ec, step.Tier, spec, prompt, maxToolCalls)
	} else {
		content, err = e.runSingleCall(ctx, ec, step.Tier, spec, prompt)
	}
	if err != nil {
		return nil, err
	}

	if spec.Schema == nil {
		return content, nil
	}
	parsed, err := llm.ParseStructured(ctx, content, spec.Schema)
	if err != nil {
		var parseErr *llmtypes.SchemaParseError
		if errors.As(err, &parseErr) {
			// Non-conforming output degrades to raw text rather than
			// failing the step.
			logger.G(ctx).WithError(err).WithField("step", step.ID).Warn("schema parse failed, returning raw content")
			return content, nil
		}
		return nil, err
	}
	return parsed, nil
}

func (e *Engine) runSingleCall(ctx context.Context, ec *skilltypes.ExecutionContext, tier skilltypes.Tier, spec *skilltypes.PromptSpec, prompt string) (string, error) {
	resp, err := e.caller.Call(ctx, ec.TenantID(), tier.Capability(), llmtypes.Request{
		SystemPrompt: spec.System,
		Messages:     []llmtypes.Message{{Role: llmtypes.RoleUser, Content: prompt}},
		MaxTokens:    spec.MaxTokens,
		Temperature:  spec.Temperature,
	})
	if err != nil {
		return "", err
	}
	ec.AddUsage(tier, resp.Usage)
	return resp.Content, nil
}

// finalize computes the run's terminal status and writes the record. The
// final output is the last step's result; failed if that step failed,
// partial if any earlier step did.
func (e *Engine) finalize(ctx context.Context, record *skilltypes.RunRecord, order []*skilltypes.Step, ec *skilltypes.ExecutionContext) {
	stepErrors := ec.Errors()
	for _, stepErr := range stepErrors {
		record.Errors = append(record.Errors, stepErr.Error())
	}
	record.Usage = ec.TotalUsage()
	record.ToolCalls = ec.ToolCallCount()
	record.CompletedAt = time.Now()

	lastFailed := false
	if len(order) > 0 {
		last := order[len(order)-1]
		if output, ok := ec.Result(last.OutputKey); ok {
			record.Output = output
		} else {
			lastFailed = true
		}
	}

	switch {
	case lastFailed:
		record.Status = skilltypes.RunStatusFailed
	case len(stepErrors) > 0:
		record.Status = skilltypes.RunStatusPartial
	default:
		record.Status = skilltypes.RunStatusCompleted
	}

	if len(stepErrors) > 0 {
		var combined *multierror.Error
		for _, stepErr := range stepErrors {
			combined = multierror.Append(combined, stepErr)
		}
		logger.G(ctx).WithError(combined.ErrorOrNil()).
			WithField("status", record.Status).
			Warn("run finished with step failures")
	}

	if err := e.runStore.FinalizeRun(ctx, record); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to persist run completion")
	}
}

// decodeResult parses tool output as JSON when possible so downstream
// templates can traverse it, falling back to the raw string.
func decodeResult(raw string) any {
	if raw == "" {
		return ""
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}
